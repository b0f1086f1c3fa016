// Package prompt builds the text conditioning sent to the generator.
//
// Build is pure: the same Request always yields the same prompt. Wording
// escalates with the attempt index so later retries push harder toward the
// target style.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cwbudde/algo-restyle/analysis"
)

// StyleInfo describes how a target style should sound.
type StyleInfo struct {
	Instruments string `yaml:"instruments"`
	Harmony     string `yaml:"harmony"`
	Feel        string `yaml:"feel"`
}

// DefaultStyles covers the labels the bundled style classifier emits.
func DefaultStyles() map[string]StyleInfo {
	return map[string]StyleInfo{
		"rock": {
			Instruments: "distorted electric guitars, aggressive drums, heavy bass",
			Harmony:     "dense rock power-chords and riffs",
			Feel:        "energetic, raw, punchy",
		},
		"jazz": {
			Instruments: "saxophone, upright bass, jazz piano, brushed drums",
			Harmony:     "extended jazz chords, colorful harmony and swing rhythm",
			Feel:        "smooth, expressive, sophisticated",
		},
		"classical": {
			Instruments: "orchestral strings, brass, woodwinds and grand piano",
			Harmony:     "rich classical orchestral harmony",
			Feel:        "cinematic, dramatic, elegant",
		},
		"pop": {
			Instruments: "bright synths, tight drums, electronic bass and modern FX",
			Harmony:     "catchy pop chord progressions",
			Feel:        "clean, modern, radio-ready",
		},
		"electronic": {
			Instruments: "synth leads, EDM drums, sub bass and sound design",
			Harmony:     "futuristic and driving harmonic motion",
			Feel:        "energetic, synthetic, powerful",
		},
	}
}

// DefaultEmotions maps emotion labels to mood wording.
func DefaultEmotions() map[string]string {
	return map[string]string{
		"angry":  "aggressive, intense, dark emotions",
		"funny":  "playful, quirky, humorous mood",
		"happy":  "bright, uplifting, joyful energy",
		"sad":    "melancholic, emotional, minor-key feeling",
		"scary":  "tense, suspenseful, unsettling atmosphere",
		"tender": "warm, gentle, intimate and delicate tone",
	}
}

var genericStyle = StyleInfo{
	Instruments: "a full band arrangement typical of the genre",
	Harmony:     "idiomatic chord progressions for the genre",
	Feel:        "distinctive, confident",
}

// Request carries everything a prompt may mention. Key and Melody are
// optional descriptors of the conditioning melody.
type Request struct {
	Style   string
	Emotion string
	Attempt int
	Key     *analysis.Key
	Melody  *analysis.MelodyScore
}

// Builder renders prompts from style and emotion tables.
type Builder struct {
	styles   map[string]StyleInfo
	emotions map[string]string
}

// NewBuilder copies the given tables. Nil tables select the defaults.
// Keys are matched case-insensitively.
func NewBuilder(styles map[string]StyleInfo, emotions map[string]string) *Builder {
	if styles == nil {
		styles = DefaultStyles()
	}
	if emotions == nil {
		emotions = DefaultEmotions()
	}
	b := &Builder{
		styles:   make(map[string]StyleInfo, len(styles)),
		emotions: make(map[string]string, len(emotions)),
	}
	for k, v := range styles {
		b.styles[normalize(k)] = v
	}
	for k, v := range emotions {
		b.emotions[normalize(k)] = v
	}
	return b
}

// Styles lists the known style labels, sorted.
func (b *Builder) Styles() []string { return sortedKeys(b.styles) }

// Emotions lists the known emotion labels, sorted.
func (b *Builder) Emotions() []string { return sortedKeys(b.emotions) }

// Known reports whether both labels have table entries.
func (b *Builder) Known(style, emotion string) bool {
	_, okS := b.styles[normalize(style)]
	_, okE := b.emotions[normalize(emotion)]
	return okS && okE
}

// Build renders the prompt for req.
func (b *Builder) Build(req Request) string {
	style := normalize(req.Style)
	emotion := normalize(req.Emotion)

	s, ok := b.styles[style]
	if !ok {
		s = genericStyle
	}
	mood, ok := b.emotions[emotion]
	if !ok {
		mood = emotion + " mood"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a heavily transformed %s style reinterpretation expressing %s. ", style, mood)
	fmt.Fprintf(&sb, "Use %s and %s. ", s.Instruments, s.Harmony)
	fmt.Fprintf(&sb, "Completely rewrite the original harmony, chord progressions, bassline, drum patterns and overall arrangement in a strong %s style. ", style)
	sb.WriteString("Do NOT reuse the original arrangement, instrumentation, mix or timbre. ")
	sb.WriteString("Only keep a faint trace of the melodic contour from the provided melody, which has already been transformed. ")
	if d := describeMelody(req.Key, req.Melody); d != "" {
		sb.WriteString(d)
		sb.WriteString(" ")
	}
	fmt.Fprintf(&sb, "Make the track feel like a new %s piece with %s character, with bold stylistic deviation and clearly different mood from the original song.", style, s.Feel)
	if e := escalation(style, req.Attempt); e != "" {
		sb.WriteString(" ")
		sb.WriteString(e)
	}
	return sb.String()
}

func escalation(style string, attempt int) string {
	switch {
	case attempt <= 1:
		return ""
	case attempt == 2:
		return fmt.Sprintf("Push the %s character further than a light cover would.", style)
	default:
		return fmt.Sprintf("Prioritize unmistakable %s genre markers over faithfulness to the source; earlier renditions stayed too close to the original.", style)
	}
}

func describeMelody(key *analysis.Key, ms *analysis.MelodyScore) string {
	var parts []string
	if key != nil && key.Confidence >= 0.3 && key.Name != "" {
		parts = append(parts, "is in "+key.Name)
	}
	if ms != nil {
		switch {
		case ms.Hook >= 0.6:
			parts = append(parts, "has a memorable, repeating hook")
		case ms.Total < 0.3:
			parts = append(parts, "is only a loose melodic outline")
		}
		switch {
		case ms.Smoothness >= 0.7:
			parts = append(parts, "moves mostly stepwise")
		case ms.Interval < 0.5:
			parts = append(parts, "leaps widely")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "The guiding melody " + joinAnd(parts) + "."
}

func joinAnd(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
