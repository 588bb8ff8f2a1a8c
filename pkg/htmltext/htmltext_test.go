package htmltext

import (
	"strings"
	"testing"
)

func TestToText(t *testing.T) {
	html := `<html><head><style>p{color:red}</style></head><body>
<p>Dear families,</p>
<p>Picture day is <b>Friday</b>.<br>Order online <a href="https://photos.example/order">here</a>.</p>
<ul><li>Wear a smile</li><li>Bring a comb</li></ul>
<script>track()</script>
</body></html>`

	got := ToText(html)

	for _, want := range []string{
		"Dear families,",
		"Picture day is Friday.",
		"Order online here (https://photos.example/order).",
		"- Wear a smile",
		"- Bring a comb",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ToText output missing %q:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"color:red", "track()", "<p>"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("ToText output should not contain %q:\n%s", unwanted, got)
		}
	}
}

func TestToTextBareLink(t *testing.T) {
	got := ToText(`<a href="https://forms.example/slip">https://forms.example/slip</a>`)
	if got != "https://forms.example/slip" {
		t.Errorf("got %q", got)
	}
}
