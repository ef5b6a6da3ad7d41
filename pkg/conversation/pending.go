package conversation

import (
	"strings"
	"sync"
)

// Pending is an unanswered recipe choice.
type Pending struct {
	OriginalText string
	Candidates   []Candidate
}

// PendingStore holds at most one Pending. A new recipe prompt replaces the
// old one, and a free-text reply gets exactly one chance to answer it.
type PendingStore struct {
	mu      sync.Mutex
	pending *Pending
}

// Set stores p, replacing anything already pending.
func (s *PendingStore) Set(p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Candidates = append([]Candidate(nil), p.Candidates...)
	s.pending = &p
}

// Pending returns the stored choice, if any.
func (s *PendingStore) Pending() (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, false
	}
	return *s.pending, true
}

// Take removes and returns the stored choice.
func (s *PendingStore) Take() (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, false
	}
	p := *s.pending
	s.pending = nil
	return p, true
}

// Clear drops the stored choice.
func (s *PendingStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Resolve matches a free-text message against the stored choice and clears
// it either way. On a match it returns the original request with the
// chosen recipe attached; otherwise the caller sends text as is.
func (s *PendingStore) Resolve(text string) (Turn, bool) {
	p, ok := s.Take()
	if !ok {
		return Turn{}, false
	}
	c, ok := MatchCandidate(text, p.Candidates)
	if !ok {
		return Turn{}, false
	}
	return Turn{Text: p.OriginalText, ResolvedRecipeID: c.RecipeID}, true
}

// MatchCandidate returns the first candidate the message names, ignoring
// case: the title contains the message, the message contains the title, or
// the message contains the title's first word. Short titles and messages
// can match loosely.
func MatchCandidate(text string, candidates []Candidate) (Candidate, bool) {
	msg := strings.ToLower(strings.TrimSpace(text))
	if msg == "" {
		return Candidate{}, false
	}
	for _, c := range candidates {
		title := strings.ToLower(strings.TrimSpace(c.Title))
		if title == "" {
			continue
		}
		if strings.Contains(title, msg) || strings.Contains(msg, title) {
			return c, true
		}
		if first := strings.Fields(title)[0]; strings.Contains(msg, first) {
			return c, true
		}
	}
	return Candidate{}, false
}
