package helper

import (
	"regexp"
)

var illegalChannelChar = regexp.MustCompile(`[^\p{L}0-9_-]`)

// IsChannelName reports whether candidate only holds letters, digits, '_' and
// '-'. The second result is the first offending character.
func IsChannelName(candidate string) (bool, string) {
	if candidate == "" {
		return false, ""
	}
	whyNot := illegalChannelChar.FindString(candidate)
	return whyNot == "", whyNot
}
