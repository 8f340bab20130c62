package conversation

import "strings"

// MatchesHandoffKeyword reports whether the message contains any of the
// trigger phrases that route the conversation to a human operator.
// Case-insensitive substring containment; first match wins.
func MatchesHandoffKeyword(text string, keywords []string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range keywords {
		k := strings.ToLower(strings.TrimSpace(keyword))
		if k == "" {
			continue
		}
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}
