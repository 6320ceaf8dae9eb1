package speech

import "strings"

// Trigger runs Action whenever an item whose text contains Phrase is
// dispatched. Actions run on their own goroutine.
type Trigger struct {
	Phrase        string
	CaseSensitive bool
	Action        func(Item)
}

// Matches reports whether text contains the trigger phrase.
func (t Trigger) Matches(text string) bool {
	if t.Phrase == "" {
		return false
	}
	if t.CaseSensitive {
		return strings.Contains(text, t.Phrase)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(t.Phrase))
}
