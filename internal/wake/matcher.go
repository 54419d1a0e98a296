// Package wake decides whether a transcript contains the configured trigger phrase.
package wake

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/rbright/parlando/internal/transcript"
)

const (
	ModeSubstring = "substring"
	ModePhonetic  = "phonetic"

	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92
)

// Matcher reports whether a transcript carries the trigger phrase.
type Matcher interface {
	Match(transcript string) bool
	Trigger() string
}

// New builds the matcher selected by mode.
func New(mode string, trigger string) (Matcher, error) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return nil, fmt.Errorf("wake trigger must not be empty")
	}

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeSubstring:
		return Substring{trigger: trigger}, nil
	case ModePhonetic:
		return NewPhonetic(trigger), nil
	default:
		return nil, fmt.Errorf("unknown wake match mode %q", mode)
	}
}

// Substring is a case-insensitive substring check with no word-boundary
// awareness: "jarviston" matches "jarvis".
type Substring struct {
	trigger string
}

func NewSubstring(trigger string) Substring {
	return Substring{trigger: trigger}
}

func (s Substring) Trigger() string { return s.trigger }

func (s Substring) Match(text string) bool {
	if s.trigger == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(s.trigger))
}

// Phonetic accepts everything Substring accepts, plus word windows that sound
// like the trigger (Double Metaphone overlap ranked by Jaro-Winkler) or are a
// near-identical spelling.
type Phonetic struct {
	substring Substring
	tokens    []string
	folded    string
	codes     map[string]struct{}

	phoneticThreshold float64
	fuzzyThreshold    float64
}

func NewPhonetic(trigger string) Phonetic {
	tokens := transcript.Words(trigger)
	return Phonetic{
		substring:         Substring{trigger: trigger},
		tokens:            tokens,
		folded:            strings.Join(tokens, " "),
		codes:             codesForTokens(tokens),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
}

func (p Phonetic) Trigger() string { return p.substring.trigger }

func (p Phonetic) Match(text string) bool {
	if p.substring.Match(text) {
		return true
	}
	n := len(p.tokens)
	if n == 0 {
		return false
	}

	words := transcript.Words(text)
	for i := 0; i+n <= len(words); i++ {
		window := words[i : i+n]
		score := matchr.JaroWinkler(strings.Join(window, " "), p.folded, false)
		if score >= p.fuzzyThreshold {
			return true
		}
		if score >= p.phoneticThreshold && codesOverlap(codesForTokens(window), p.codes) {
			return true
		}
	}
	return false
}

// codesForTokens unions the primary and secondary Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
