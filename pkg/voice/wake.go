package voice

import (
	"strings"
	"unicode"
)

// DefaultWakePhrases are the accepted spellings of the wake word. Recognizers
// routinely mishear "sous", so several near-homophones count as synonyms.
var DefaultWakePhrases = []string{"hey sous", "hey sue", "hey souz", "hey soos"}

// WakeMatch is the result of a successful wake phrase scan.
type WakeMatch struct {
	Phrase    string // the configured phrase that matched
	Index     int    // byte offset of the phrase in the transcript
	Remainder string // text after the phrase, without leading punctuation; empty for a bare wake phrase
}

// Bare reports whether the transcript held only the wake phrase.
func (m WakeMatch) Bare() bool {
	return m.Remainder == ""
}

// WakeDetector finds wake phrases in recognition transcripts.
type WakeDetector struct {
	phrases []string
}

// NewWakeDetector creates a detector for the given phrases. Matching is case
// insensitive; blank phrases are ignored.
func NewWakeDetector(phrases []string) *WakeDetector {
	d := &WakeDetector{}
	for _, p := range phrases {
		p, _ = fold(strings.TrimSpace(p))
		if p != "" {
			d.phrases = append(d.phrases, p)
		}
	}
	return d
}

// Phrases returns the normalized wake phrases.
func (d *WakeDetector) Phrases() []string {
	return append([]string(nil), d.phrases...)
}

// Detect scans transcript for the earliest occurring wake phrase. When two
// phrases start at the same offset the longer one wins, so "hey souz" is not
// cut short by "hey sou". The phrase may appear mid-sentence.
func (d *WakeDetector) Detect(transcript string) (WakeMatch, bool) {
	lower, offsets := fold(transcript)
	best := WakeMatch{Index: -1}

	for _, phrase := range d.phrases {
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}
		if best.Index < 0 || idx < best.Index || (idx == best.Index && len(phrase) > len(best.Phrase)) {
			best = WakeMatch{Phrase: phrase, Index: idx}
		}
	}
	if best.Index < 0 {
		return WakeMatch{}, false
	}

	end := offsets[best.Index+len(best.Phrase)]
	best.Index = offsets[best.Index]
	best.Remainder = strings.TrimSpace(strings.TrimLeft(transcript[end:], " \t,.!?:;-"))
	return best, true
}

// fold lowercases s one rune at a time and returns, for each byte offset of
// the result plus its end, the byte offset in s it came from.
func fold(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		n := b.Len()
		b.WriteRune(unicode.ToLower(r))
		for ; n < b.Len(); n++ {
			offsets = append(offsets, i)
		}
	}
	offsets = append(offsets, len(s))
	return b.String(), offsets
}

// Contains reports whether transcript holds any wake phrase.
func (d *WakeDetector) Contains(transcript string) bool {
	_, ok := d.Detect(transcript)
	return ok
}
