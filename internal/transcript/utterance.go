// Package transcript accumulates recognized speech and holds the visible conversation log.
package transcript

import "strings"

// Utterance accumulates incremental recognition results for one capture cycle.
//
// Final results are committed as segments. An interim result replaces the
// previous interim while it continues the same speech; otherwise the previous
// interim is committed before the new one takes its place.
type Utterance struct {
	segments []string
	interim  string
	frozen   bool
}

// Apply merges one recognition result in arrival order. It is a no-op once frozen.
func (u *Utterance) Apply(text string, final bool) {
	if u.frozen {
		return
	}
	text = Clean(text)
	if text == "" {
		return
	}

	if final {
		if u.interim != "" && !isContinuation(u.interim, text) {
			u.segments = appendSegment(u.segments, u.interim)
		}
		u.segments = appendSegment(u.segments, text)
		u.interim = ""
		return
	}

	if u.interim != "" && !isContinuation(u.interim, text) {
		u.segments = appendSegment(u.segments, u.interim)
	}
	u.interim = text
}

// Text returns the whitespace-normalized utterance including the trailing interim.
func (u *Utterance) Text() string {
	parts := append([]string(nil), u.segments...)
	if u.interim != "" {
		parts = appendSegment(parts, u.interim)
	}
	return Clean(strings.Join(parts, " "))
}

// Freeze closes the utterance for editing and returns its final text.
func (u *Utterance) Freeze() string {
	u.frozen = true
	return u.Text()
}

// Clean normalizes whitespace runs to single spaces and trims the result.
func Clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// appendSegment merges continuation segments to avoid duplicate growth.
func appendSegment(segments []string, text string) []string {
	text = Clean(text)
	if text == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, text)
	}

	last := segments[len(segments)-1]
	switch {
	case text == last:
		return segments
	case strings.HasPrefix(text, last):
		segments[len(segments)-1] = text
		return segments
	case strings.HasPrefix(last, text):
		return segments
	default:
		return append(segments, text)
	}
}

// isContinuation decides whether current revises the same speech as previous.
func isContinuation(previous string, current string) bool {
	if previous == "" || current == "" || previous == current {
		return true
	}
	if strings.HasPrefix(current, previous) || strings.HasPrefix(previous, current) {
		return true
	}

	prevWords := strings.Fields(previous)
	currWords := strings.Fields(current)
	shorter := min(len(prevWords), len(currWords))
	if shorter == 0 {
		return true
	}

	common := 0
	for common < shorter && prevWords[common] == currWords[common] {
		common++
	}
	return common*2 >= shorter
}
