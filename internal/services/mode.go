package services

import (
	"strings"
	"time"
	"unicode"
)

// ResponseMode is the internal per-turn depth selector. It is never exposed
// to the client; it only shapes the mode-header system record.
type ResponseMode string

const (
	ModeQuick   ResponseMode = "QUICK"
	ModeExplain ResponseMode = "EXPLAIN"
	ModeFull    ResponseMode = "FULL"
)

// SoftMemory is the per-session scratch read at the top of a turn.
type SoftMemory struct {
	LastMode     string
	LastShortMsg string
	LastTS       time.Time
	StickyThread int64
}

// lastModeRecent bounds how long a remembered mode stays inheritable.
const lastModeMaxAge = 10 * time.Minute

var interrogativeCues = []string{
	"what", "why", "how", "when", "where", "who", "which", "can", "could",
	"should", "would", "is", "are", "do", "does", "did", "will",
}

var commandCues = []string{
	"explain", "describe", "list", "summarize", "compare", "tell", "show", "help",
}

var explainCues = []string{
	"what is", "what are", "what does", "explain", "simpler", "simplify",
	"in plain", "plain english", "meaning of", "what do you mean", "break it down",
}

const (
	quickTokenMax = 10
	fullLengthMin = 280
	fullClauseMin = 3
)

// ClassifyMode selects the response depth for one turn. Deterministic and
// pure: same inputs, same result.
func ClassifyMode(message string, hasAttachments bool, mem SoftMemory, now time.Time) (ResponseMode, string) {
	msg := strings.TrimSpace(message)
	lower := strings.ToLower(msg)
	hint := topicHint(lower)

	if hasAttachments {
		return ModeFull, hint
	}

	tokens := strings.Fields(lower)
	if len(tokens) <= quickTokenMax && !strings.Contains(msg, "?") &&
		!hasAnyWord(tokens, interrogativeCues) && !hasAnyWord(tokens, commandCues) {
		return ModeQuick, hint
	}

	for _, cue := range explainCues {
		if strings.Contains(lower, cue) {
			return ModeExplain, hint
		}
	}

	if len(msg) >= fullLengthMin || clauseCount(msg) >= fullClauseMin {
		return ModeFull, hint
	}

	if mem.LastMode != "" && !mem.LastTS.IsZero() && now.Sub(mem.LastTS) <= lastModeMaxAge {
		switch ResponseMode(mem.LastMode) {
		case ModeQuick, ModeExplain, ModeFull:
			return ResponseMode(mem.LastMode), hint
		}
	}

	return ModeExplain, hint
}

func hasAnyWord(tokens []string, cues []string) bool {
	for _, t := range tokens {
		t = strings.TrimFunc(t, func(r rune) bool { return !unicode.IsLetter(r) })
		for _, c := range cues {
			if t == c {
				return true
			}
		}
	}
	return false
}

func clauseCount(msg string) int {
	n := 1
	for _, r := range msg {
		switch r {
		case ',', ';', '.', '!', '?':
			n++
		}
	}
	return n
}

var topicStopwords = map[string]bool{
	"i": true, "me": true, "my": true, "the": true, "a": true, "an": true,
	"is": true, "are": true, "was": true, "what": true, "whats": true,
	"how": true, "why": true, "about": true, "of": true, "for": true,
	"to": true, "in": true, "on": true, "and": true, "it": true, "this": true,
	"that": true, "have": true, "has": true, "do": true, "does": true,
	"can": true, "you": true, "tell": true, "explain": true, "please": true,
	"with": true, "at": true, "been": true, "feel": true, "feeling": true,
}

// topicHint returns the first salient noun-ish phrase (up to three words),
// or "" when nothing sticks out.
func topicHint(lower string) string {
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var phrase []string
	for _, w := range words {
		if topicStopwords[w] || len(w) < 3 {
			if len(phrase) > 0 {
				break
			}
			continue
		}
		phrase = append(phrase, w)
		if len(phrase) == 3 {
			break
		}
	}
	return strings.Join(phrase, " ")
}
