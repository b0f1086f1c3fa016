package prompt

import (
	"strings"
	"testing"

	"github.com/cwbudde/algo-restyle/analysis"
)

func TestBuildKnownStyle(t *testing.T) {
	b := NewBuilder(nil, nil)
	p := b.Build(Request{Style: "Jazz", Emotion: "SAD", Attempt: 1})
	for _, want := range []string{
		"jazz style reinterpretation",
		"saxophone, upright bass",
		"melancholic, emotional",
		"smooth, expressive, sophisticated character",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestBuildIsPure(t *testing.T) {
	b := NewBuilder(nil, nil)
	req := Request{Style: "rock", Emotion: "happy", Attempt: 3}
	if b.Build(req) != b.Build(req) {
		t.Fatal("same request produced different prompts")
	}
}

func TestUnknownLabelsFallBack(t *testing.T) {
	b := NewBuilder(nil, nil)
	p := b.Build(Request{Style: "bossa nova", Emotion: "nostalgic", Attempt: 1})
	if !strings.Contains(p, "bossa nova style") || !strings.Contains(p, genericStyle.Instruments) {
		t.Fatalf("generic caption not used:\n%s", p)
	}
	if !strings.Contains(p, "nostalgic mood") {
		t.Fatalf("emotion fallback not used:\n%s", p)
	}
	if b.Known("bossa nova", "happy") || !b.Known("Rock", "happy") {
		t.Fatal("Known mismatch")
	}
}

func TestAttemptsEscalate(t *testing.T) {
	b := NewBuilder(nil, nil)
	p1 := b.Build(Request{Style: "pop", Emotion: "tender", Attempt: 1})
	p2 := b.Build(Request{Style: "pop", Emotion: "tender", Attempt: 2})
	p4 := b.Build(Request{Style: "pop", Emotion: "tender", Attempt: 4})
	if !strings.HasPrefix(p2, p1) || !strings.HasPrefix(p4, p1) {
		t.Fatal("escalation must extend the base prompt")
	}
	if p1 == p2 || p2 == p4 {
		t.Fatal("attempts 1, 2 and 4 must differ")
	}
	if !strings.Contains(p4, "unmistakable pop genre markers") {
		t.Fatalf("late attempt wording missing:\n%s", p4)
	}
}

func TestMelodyDescriptors(t *testing.T) {
	b := NewBuilder(nil, nil)
	key := &analysis.Key{Tonic: 9, Mode: analysis.Minor, Name: "A minor", Confidence: 0.8}
	ms := &analysis.MelodyScore{Total: 0.7, Hook: 0.75, Smoothness: 0.8, Interval: 0.9}
	p := b.Build(Request{Style: "rock", Emotion: "angry", Attempt: 1, Key: key, Melody: ms})
	want := "The guiding melody is in A minor, has a memorable, repeating hook and moves mostly stepwise."
	if !strings.Contains(p, want) {
		t.Fatalf("prompt missing %q:\n%s", want, p)
	}

	weak := &analysis.Key{Name: "C major", Confidence: 0.1}
	p = b.Build(Request{Style: "rock", Emotion: "angry", Attempt: 1, Key: weak})
	if strings.Contains(p, "guiding melody") {
		t.Fatalf("low-confidence key must not be described:\n%s", p)
	}
}

func TestCustomTables(t *testing.T) {
	b := NewBuilder(map[string]StyleInfo{"Lofi": {Instruments: "dusty keys", Harmony: "jazzy sevenths", Feel: "hazy"}}, nil)
	if got := b.Styles(); len(got) != 1 || got[0] != "lofi" {
		t.Fatalf("Styles = %v", got)
	}
	if len(b.Emotions()) != 6 {
		t.Fatalf("Emotions = %v", b.Emotions())
	}
	if p := b.Build(Request{Style: "lofi", Emotion: "calm"}); !strings.Contains(p, "dusty keys") {
		t.Fatalf("custom table not used:\n%s", p)
	}
}
