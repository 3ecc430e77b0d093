package moderation

import (
	"strings"

	goaway "github.com/TwiN/go-away"
)

// curatedWords is the deterministic part of the filter. Entries are lowercase
// and matched as substrings.
var curatedWords = []string{
	// ru
	"блядь",
	"блять",
	"бля",
	"хуй",
	"хер",
	"пизда",
	"сука",
	"ублюдок",
	"мразь",
	"говно",
	"ебать",
	"ебаный",
	"пидор",
	"пидарас",
	"мудак",
	"хуесос",
	"уебок",
	"уёбок",
	// en
	"fuck",
	"fucking",
	"motherfucker",
	"bitch",
	"bastard",
	"asshole",
	"dick",
	"cunt",
	"shit",
	"bullshit",
}

// Heuristic is a general purpose profanity classifier consulted after the
// curated list.
type Heuristic interface {
	IsProfane(s string) bool
	Censor(s string) string
}

const (
	ReasonCurated   = "curated"
	ReasonHeuristic = "heuristic"
)

type LexiconResult struct {
	Blocked bool
	Term    string
	Reason  string
}

type Lexicon struct {
	words     []string
	heuristic Heuristic
}

// NewLexicon returns a lexicon with the built-in word list and the go-away
// detector as secondary check. The detector matches within words only, so
// "of passage" does not read as "ofpassage".
func NewLexicon() *Lexicon {
	return NewLexiconWithTerms(curatedWords, goaway.NewProfanityDetector().WithSanitizeSpaces(false))
}

func NewLexiconWithTerms(words []string, heuristic Heuristic) *Lexicon {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			normalized = append(normalized, w)
		}
	}
	return &Lexicon{words: normalized, heuristic: heuristic}
}

// Check never panics. A failing heuristic counts as "not profane".
func (l *Lexicon) Check(text string) LexiconResult {
	low := strings.ToLower(text)
	for _, w := range l.words {
		if strings.Contains(low, w) {
			return LexiconResult{Blocked: true, Term: w, Reason: ReasonCurated}
		}
	}
	if l.heuristicProfane(text) {
		return LexiconResult{Blocked: true, Reason: ReasonHeuristic}
	}
	return LexiconResult{}
}

func (l *Lexicon) ContainsProfanity(text string) bool {
	return l.Check(text).Blocked
}

func (l *Lexicon) heuristicProfane(text string) (profane bool) {
	if l.heuristic == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			profane = false
		}
	}()
	return l.heuristic.IsProfane(text)
}

// Censor masks curated words and whatever the heuristic recognizes. On a
// heuristic failure the curated masking is still applied.
func (l *Lexicon) Censor(text string) string {
	out := maskWords(text, l.words)
	if l.heuristic == nil {
		return out
	}
	censored := out
	func() {
		defer func() {
			if recover() != nil {
				censored = out
			}
		}()
		censored = l.heuristic.Censor(out)
	}()
	return censored
}

func maskWords(text string, words []string) string {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	// ToLower can change the rune count for a few scripts; skip masking then.
	if len(runes) != len(lower) {
		return text
	}
	for _, w := range words {
		wr := []rune(w)
		for i := 0; i+len(wr) <= len(lower); i++ {
			if string(lower[i:i+len(wr)]) != w {
				continue
			}
			for j := i; j < i+len(wr); j++ {
				runes[j] = '*'
			}
			i += len(wr) - 1
		}
	}
	return string(runes)
}
