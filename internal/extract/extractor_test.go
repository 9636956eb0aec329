package extract

import (
	"testing"

	"github.com/samvad-hq/channel-relay/internal/domain"
)

func TestItemNameFromArticleLabel(t *testing.T) {
	name, ok := ItemName("🔎Article:NIKE Couple bag\n💰Price: $ 27")
	if !ok || name != "NIKE Couple bag" {
		t.Fatalf("ItemName = %q, %v", name, ok)
	}
}

func TestItemNameLabelStopsAtDollar(t *testing.T) {
	name, ok := ItemName("Article : Jordan 4 Retro $ 45")
	if !ok || name != "Jordan 4 Retro" {
		t.Fatalf("ItemName = %q, %v", name, ok)
	}
}

func TestItemNameMagnifierWithoutLabel(t *testing.T) {
	name, ok := ItemName("🔍 : Moncler jacket\nsomething else")
	if !ok || name != "Moncler jacket" {
		t.Fatalf("ItemName = %q, %v", name, ok)
	}
}

func TestItemNameFallsBackToFirstCleanLine(t *testing.T) {
	text := "🔗 https://weidian.com/item\nTrusted seller\nStone Island hoodie\nPrice 30$"
	name, ok := ItemName(text)
	if !ok || name != "Stone Island hoodie" {
		t.Fatalf("ItemName = %q, %v", name, ok)
	}
}

func TestItemNameAbsentWhenEveryLineBlacklisted(t *testing.T) {
	if name, ok := ItemName("Link: https://cnfans.com\n💰 40$\n\n"); ok {
		t.Fatalf("expected no name, got %q", name)
	}
	if _, ok := ItemName("   "); ok {
		t.Fatalf("expected no name for blank text")
	}
}

func TestPriceConversionPrefersConvertedAmount(t *testing.T) {
	e := New(0, nil)
	p, ok := e.Price("Price :CNY ¥ 179.00 ≈ $ 27.12", "")
	if !ok {
		t.Fatalf("expected price")
	}
	if p.Original != 27.12 || p.Currency != "$" {
		t.Fatalf("unexpected price %+v", p)
	}
}

func TestPriceLabelledDollar(t *testing.T) {
	e := New(0, nil)
	p, ok := e.Price("🔎Article:NIKE Couple bag\n💰Price: $ 27", "")
	if !ok || p.Original != 27 || p.Currency != "$" {
		t.Fatalf("unexpected price %+v ok=%v", p, ok)
	}
}

func TestPriceEuroDetectedFromMatchedSpan(t *testing.T) {
	e := New(0, nil)
	p, ok := e.Price("Hoodie\nPrice: 18,50€", "")
	if !ok || p.Original != 18.5 || p.Currency != "€" {
		t.Fatalf("unexpected price %+v ok=%v", p, ok)
	}

	p, ok = e.Price("Giacca disponibile a € 99", "")
	if !ok || p.Original != 99 || p.Currency != "€" {
		t.Fatalf("unexpected price %+v ok=%v", p, ok)
	}
}

func TestPriceLooseSymbolDistance(t *testing.T) {
	e := New(0, nil)
	p, ok := e.Price("only $ (shipping incl.) 42", "")
	if !ok || p.Original != 42 || p.Currency != "$" {
		t.Fatalf("unexpected price %+v ok=%v", p, ok)
	}
}

func TestPriceCustomPatternRunsFirst(t *testing.T) {
	e := New(0, nil)
	text := "Costo 12 EUR\n$ 30"
	p, ok := e.Price(text, `costo\s*\d+\s*eur`)
	if !ok || p.Original != 12 {
		t.Fatalf("custom pattern not applied first: %+v ok=%v", p, ok)
	}

	p, ok = e.Price(text, "")
	if !ok || p.Original != 30 {
		t.Fatalf("unexpected built-in price %+v ok=%v", p, ok)
	}
}

func TestPriceInvalidCustomPatternIgnored(t *testing.T) {
	e := New(0, nil)
	p, ok := e.Price("Price: 10$", `([unclosed`)
	if !ok || p.Original != 10 {
		t.Fatalf("expected fallback to built-in rules, got %+v ok=%v", p, ok)
	}
}

func TestPriceAbsent(t *testing.T) {
	e := New(0, nil)
	if p, ok := e.Price("no amounts here", ""); ok {
		t.Fatalf("expected no price, got %+v", p)
	}
}

func TestApplyMarkupRoundsToCents(t *testing.T) {
	p := ApplyMarkup(&domain.Price{Original: 27, Currency: "$"}, 17)
	if p.Final != 31.59 || p.Original != 27 || p.MarkupPercent != 17 {
		t.Fatalf("unexpected markup result %+v", p)
	}

	if ApplyMarkup(nil, 17) != nil {
		t.Fatalf("expected nil for absent price")
	}

	for _, original := range []float64{0, 0.01, 1.99, 27.12, 179, 1234.56} {
		for _, k := range []float64{0, 5, 17, 25, 100} {
			got := ApplyMarkup(&domain.Price{Original: original}, k)
			want := round2(original * (1 + k/100))
			if got.Final != want {
				t.Fatalf("ApplyMarkup(%v, %v) = %v want %v", original, k, got.Final, want)
			}
			if got.Final < original {
				t.Fatalf("final %v below original %v for markup %v", got.Final, original, k)
			}
		}
	}
}

func TestExtractionIsDeterministic(t *testing.T) {
	e := New(17, nil)
	text := "ℹ️Article: Air Max 90\nPrice: 55$"
	n1, _ := ItemName(text)
	p1, _ := e.Price(text, "")
	for i := 0; i < 5; i++ {
		n, _ := ItemName(text)
		p, _ := e.Price(text, "")
		if n != n1 || p != p1 {
			t.Fatalf("extraction changed between calls: %q/%+v vs %q/%+v", n, p, n1, p1)
		}
	}
}

func TestProcessHonoursChannelOptions(t *testing.T) {
	e := New(17, nil)
	off := false
	msg := domain.SourceMessage{
		ID:        7,
		ChannelID: "-1001",
		Text:      "🔎Article:NIKE Couple bag\n💰Price: $ 27",
		GroupID:   "g1",
		Media: []domain.MediaRef{
			{Kind: domain.MediaPhoto, FileID: "p1"},
			{Kind: domain.MediaVideo, FileID: "v1"},
		},
	}

	got := e.Process(msg, domain.ChannelConfig{MediaTypes: &domain.MediaTypes{Photos: true}})
	if got.ItemName != "NIKE Couple bag" || got.GroupID != "g1" {
		t.Fatalf("unexpected content %+v", got)
	}
	if got.Price == nil || got.Price.Final != 31.59 {
		t.Fatalf("unexpected price %+v", got.Price)
	}
	if len(got.Media) != 1 || got.Media[0].FileID != "p1" {
		t.Fatalf("video should be filtered out, got %+v", got.Media)
	}

	got = e.Process(msg, domain.ChannelConfig{IncludePrice: &off})
	if got.Price != nil || got.ItemName == "" {
		t.Fatalf("price disabled but extracted: %+v", got)
	}

	got = e.Process(msg, domain.ChannelConfig{IncludeText: &off})
	if got.ItemName != "" || got.Price != nil {
		t.Fatalf("text disabled but extracted: %+v", got)
	}
}
