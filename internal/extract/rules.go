package extract

import (
	"regexp"
	"strings"
)

// Rule is one entry of an ordered extraction list. Group is the capture
// group holding the value; order encodes specificity.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Group   int
}

// Match returns the captured value and the full matched span.
func (r Rule) Match(text string) (value, span string, ok bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil || r.Group >= len(m) || m[r.Group] == "" {
		return "", "", false
	}
	return m[r.Group], m[0], true
}

func rule(name, expr string, group int) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(expr), Group: group}
}

// amountExpr matches an integer with up to two decimals, dot or comma separated.
const amountExpr = `(\d+(?:[.,]\d{1,2})?)`

var amountRe = regexp.MustCompile(amountExpr)

// nameRules are tried in order; the first match wins.
var nameRules = []Rule{
	rule("article-label", `(?i)Article\s*:+\s*([^$\n]+)`, 1),
	rule("article-spaced-label", `(?i)Article\s+:\s*([^$\n]+)`, 1),
	rule("magnifier-article", `(?i)🔍\s*Article:+\s*([^$\n]+)`, 1),
	rule("magnifier-label", `🔍\s*:\s*([^$\n]+)`, 1),
	rule("name-label", `(?i)(?:product|item|name)\s*:+\s*([^$\n]+)`, 1),
}

// conversionRule captures the converted dollar amount of a "CNY ¥ x ≈ $ y" line.
var conversionRule = rule("cny-conversion",
	`(?i)Price\s*:\s*CNY\s*¥\s*`+amountExpr+`\s*(?:≈|=)\s*\$\s*`+amountExpr, 2)

// priceRules go from labelled forms carrying a symbol, to a bare label, to
// symbol-adjacent numbers anywhere in the text.
var priceRules = []Rule{
	rule("label-dollar-prefix", `(?i)Price\s*:?\s*\$\s*`+amountExpr, 1),
	rule("label-dollar-suffix", `(?i)Price\s*:?\s*`+amountExpr+`\s*\$`, 1),
	rule("label-euro-prefix", `(?i)Price\s*:?\s*€\s*`+amountExpr, 1),
	rule("label-euro-suffix", `(?i)Price\s*:?\s*`+amountExpr+`\s*€`, 1),
	rule("label-bare", `(?i)Price\s*:?\s*`+amountExpr, 1),
	rule("dollar-prefix", `\$\s*`+amountExpr, 1),
	rule("dollar-suffix", amountExpr+`\s*\$`, 1),
	rule("euro-prefix", `€\s*`+amountExpr, 1),
	rule("euro-suffix", amountExpr+`\s*€`, 1),
	rule("dollar-loose", `\$[^0-9]{0,20}`+amountExpr, 1),
	rule("euro-loose", `€[^0-9]{0,20}`+amountExpr, 1),
}

// fallbackBlacklist rejects lines that carry links, prices, vendors or socials.
var fallbackBlacklist = regexp.MustCompile(`(?i)link|price|prezzo|seller|weidian|cnfans|spreadsheet|trusted|official|discord|instagram|telegram`)

const fallbackGlyphs = "🔗📱💰💯🔍📊📈📋📌📎🏆✅"

func usableFallbackLine(line string) bool {
	if line == "" {
		return false
	}
	if fallbackBlacklist.MatchString(line) {
		return false
	}
	return !strings.ContainsAny(line, fallbackGlyphs)
}
