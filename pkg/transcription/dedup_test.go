package transcription

import "testing"

func TestIsHallucination(t *testing.T) {
	cases := map[string]bool{
		"you":                  true,
		"Thank you.":           true,
		"Hello, how are you":   false,
		"foreign":              true,
		"this is real content": false,
	}
	for text, want := range cases {
		if got := isHallucination(text); got != want {
			t.Errorf("isHallucination(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestNormalizedHashIgnoresCaseAndWhitespace(t *testing.T) {
	a := normalizedHash("Hello   World")
	b := normalizedHash("hello world")
	if a != b {
		t.Errorf("expected equal hashes, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16-char hash, got %d chars", len(a))
	}
}

func TestRemoveOverlapStripsLeadingOverlap(t *testing.T) {
	last := "the cat sat on the mat"
	newText := "sat on the mat again today yes indeed"
	got := removeOverlap(newText, last)
	if got != "yes indeed" {
		t.Errorf("removeOverlap = %q, want %q", got, "yes indeed")
	}
}

func TestRemoveOverlapNoOverlap(t *testing.T) {
	last := "completely different text here"
	text := "something totally unrelated appears now"
	got := removeOverlap(text, last)
	if got != text {
		t.Errorf("removeOverlap = %q, want unchanged %q", got, text)
	}
}

func TestIsNearDuplicate(t *testing.T) {
	last := "the quick brown fox jumps over the lazy dog"
	if !isNearDuplicate("the quick brown fox jumps", last) {
		t.Errorf("expected near-duplicate text to be detected")
	}
	if isNearDuplicate("a completely unrelated sentence appears", last) {
		t.Errorf("expected unrelated text to not be a near-duplicate")
	}
}

func TestEndsWithSentenceTerminal(t *testing.T) {
	cases := map[string]bool{
		"Hello world.":  true,
		"Really?":       true,
		"Wow!":          true,
		"no terminator": false,
		"你好。":           true,
		"":               false,
	}
	for text, want := range cases {
		if got := endsWithSentenceTerminal(text); got != want {
			t.Errorf("endsWithSentenceTerminal(%q) = %v, want %v", text, got, want)
		}
	}
}
