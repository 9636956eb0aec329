package publish

import (
	"strconv"
	"strings"

	"github.com/samvad-hq/channel-relay/internal/domain"
)

// DefaultCaption is used when extraction produced no item name.
const DefaultCaption = "New product available"

// BuildCaption joins item name, price line and attribution with blank lines,
// always in that order.
func BuildCaption(content domain.ProcessedContent, attribution, fallback string) string {
	if fallback == "" {
		fallback = DefaultCaption
	}

	name := strings.TrimSpace(content.ItemName)
	if name == "" {
		name = fallback
	}
	parts := []string{name}

	if line := priceLine(content.Price); line != "" {
		parts = append(parts, line)
	}
	if a := strings.TrimSpace(attribution); a != "" {
		parts = append(parts, a)
	}
	return strings.Join(parts, "\n\n")
}

func priceLine(p *domain.Price) string {
	if p == nil {
		return ""
	}
	line := "💰 Price: " + formatAmount(p.Final) + " " + p.Currency
	if p.MarkupPercent > 0 {
		line += "\n📈 (+" + strconv.FormatFloat(p.MarkupPercent, 'f', -1, 64) + "% markup)"
	}
	return line
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
