package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/logger"
)

const (
	CurrencyDollar = "$"
	CurrencyEuro   = "€"
)

// Extractor turns raw post text into an item name and a marked-up price.
// It holds no per-message state; the pattern cache only memoizes compilation.
type Extractor struct {
	markup float64
	log    logger.Logger

	customMu sync.Mutex
	custom   map[string]*regexp.Regexp
}

// New builds an extractor applying markupPercent to every extracted price.
func New(markupPercent float64, log logger.Logger) *Extractor {
	return &Extractor{
		markup: markupPercent,
		log:    logger.Ensure(log),
		custom: make(map[string]*regexp.Regexp),
	}
}

// Process derives ProcessedContent from a source message under the channel's options.
func (e *Extractor) Process(msg domain.SourceMessage, cfg domain.ChannelConfig) domain.ProcessedContent {
	out := domain.ProcessedContent{GroupID: msg.GroupID}

	if text := NormalizeText(msg.Text); text != "" && cfg.TextEnabled() {
		if name, ok := ItemName(text); ok {
			out.ItemName = name
		}
		if cfg.PriceEnabled() {
			if p, ok := e.Price(text, cfg.PricePattern); ok {
				out.Price = ApplyMarkup(&p, e.markup)
			}
		}
	}

	for _, m := range msg.Media {
		if cfg.AllowsMedia(m.Kind) {
			out.Media = append(out.Media, m)
		}
	}
	return out
}

// ItemName returns the first labelled name, else the first clean line.
func ItemName(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	for _, r := range nameRules {
		if v, _, ok := r.Match(text); ok {
			if name := strings.TrimSpace(v); name != "" {
				return name, true
			}
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if usableFallbackLine(line) {
			return line, true
		}
	}
	return "", false
}

// Price extracts the first parseable amount. customPattern, when valid, is
// tried before the built-in rules but after the conversion rule.
func (e *Extractor) Price(text, customPattern string) (domain.Price, bool) {
	if strings.TrimSpace(text) == "" {
		return domain.Price{}, false
	}

	if v, _, ok := conversionRule.Match(text); ok {
		if amount, ok := parseAmount(v); ok {
			return domain.Price{Original: amount, Currency: CurrencyDollar}, true
		}
	}

	if re := e.customRule(customPattern); re != nil {
		if span := re.FindString(text); span != "" {
			if amount, ok := parseAmount(amountRe.FindString(span)); ok {
				return domain.Price{Original: amount, Currency: currencyOf(span)}, true
			}
		}
	}

	return matchPrice(text)
}

func matchPrice(text string) (domain.Price, bool) {
	for _, r := range priceRules {
		v, span, ok := r.Match(text)
		if !ok {
			continue
		}
		if amount, ok := parseAmount(v); ok {
			return domain.Price{Original: amount, Currency: currencyOf(span)}, true
		}
	}
	return domain.Price{}, false
}

func (e *Extractor) customRule(pattern string) *regexp.Regexp {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}

	e.customMu.Lock()
	defer e.customMu.Unlock()

	if re, ok := e.custom[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		e.log.WarnObj("custom price pattern ignored", "extract_error", map[string]any{
			"pattern": pattern,
			"error":   err.Error(),
		})
		re = nil
	}
	e.custom[pattern] = re
	return re
}

// ApplyMarkup returns a copy of p with final = round2(original * (1 + percent/100)).
func ApplyMarkup(p *domain.Price, percent float64) *domain.Price {
	if p == nil {
		return nil
	}
	out := *p
	out.MarkupPercent = percent
	out.Final = round2(p.Original * (1 + percent/100))
	return &out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseAmount(raw string) (float64, bool) {
	raw = strings.Replace(strings.TrimSpace(raw), ",", ".", 1)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func currencyOf(span string) string {
	if strings.Contains(span, CurrencyEuro) {
		return CurrencyEuro
	}
	return CurrencyDollar
}
