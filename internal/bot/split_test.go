package bot

import (
	"strings"
	"testing"
)

func TestSplitTextShortPassthrough(t *testing.T) {
	got := SplitText("короткое сообщение", TextLimit)
	if len(got) != 1 || got[0] != "короткое сообщение" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextRespectsLimit(t *testing.T) {
	// Cyrillic makes byte-based slicing wrong; the limit is in runes.
	long := strings.Repeat("гемоглобин в норме\n", 50)
	parts := SplitText(long, 100)
	if len(parts) < 2 {
		t.Fatalf("parts = %d", len(parts))
	}
	for i, p := range parts {
		if n := len([]rune(p)); n > 100 {
			t.Fatalf("part %d has %d runes", i, n)
		}
		if p == "" {
			t.Fatalf("part %d is empty", i)
		}
	}
}

func TestSplitTextPrefersNewlineBreaks(t *testing.T) {
	text := "первая строка\nвторая строка\nтретья строка"
	parts := SplitText(text, 30)
	for i, p := range parts {
		if strings.Contains(p, "стро\n") || strings.HasSuffix(p, "стр") {
			t.Fatalf("part %d cuts mid-word: %q", i, p)
		}
	}
}

func TestSplitTextNoContentLost(t *testing.T) {
	long := strings.Repeat("слово ", 200)
	parts := SplitText(long, 64)
	joined := strings.Join(parts, " ")
	if strings.Count(joined, "слово") != 200 {
		t.Fatalf("words lost: %d of 200", strings.Count(joined, "слово"))
	}
}
