package extract

import "testing"

func TestNormalizeTextFlattensHTMLCaptions(t *testing.T) {
	raw := "<b>Article:</b> Yeezy 350<br>💰Price: <i>$ 80</i>"
	got := NormalizeText(raw)
	want := "Article: Yeezy 350\n💰Price: $ 80"
	if got != want {
		t.Fatalf("NormalizeText = %q want %q", got, want)
	}

	name, ok := ItemName(got)
	if !ok || name != "Yeezy 350" {
		t.Fatalf("ItemName after normalize = %q", name)
	}
}

func TestNormalizeTextLeavesPlainTextAlone(t *testing.T) {
	raw := "  Price < 20 and > 10  \r\nsecond   line "
	got := NormalizeText(raw)
	if got != "Price < 20 and > 10\nsecond line" {
		t.Fatalf("NormalizeText = %q", got)
	}
}

func TestFormatTextStripsDecorations(t *testing.T) {
	got := FormatText("🔥 New  drop!\n#limited  (EU)")
	if got != "New drop! limited EU" {
		t.Fatalf("FormatText = %q", got)
	}
}
