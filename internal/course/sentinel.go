package course

import "strings"

// ContainsSentinel reports whether the model signalled objective completion.
func ContainsSentinel(text, sentinel string) bool {
	return sentinel != "" && strings.Contains(text, sentinel)
}

// StripSentinel removes every occurrence of sentinel and the whitespace left
// dangling at the end of the text.
func StripSentinel(text, sentinel string) string {
	if sentinel == "" || !strings.Contains(text, sentinel) {
		return text
	}
	return trimTail(strings.ReplaceAll(text, sentinel, ""))
}

// Displayable returns the part of a partially streamed response that is safe
// to show. The sentinel is stripped, and a trailing fragment that could still
// grow into the sentinel is withheld until more text arrives. Trailing
// whitespace is held back as well, so every value is a prefix of both later
// values and the StripSentinel result.
func Displayable(text, sentinel string) string {
	if sentinel == "" {
		return trimTail(text)
	}
	out := strings.ReplaceAll(text, sentinel, "")
	for n := min(len(sentinel)-1, len(out)); n > 0; n-- {
		if strings.HasSuffix(out, sentinel[:n]) {
			return trimTail(out[:len(out)-n])
		}
	}
	return trimTail(out)
}

func trimTail(s string) string { return strings.TrimRight(s, " \t\r\n") }
