package admission

import (
	"strings"

	"mvdan.cc/xurls/v2"
)

// urlPattern is the precompiled TLD-list URL detector; schemeless links like
// "example.com" count, which is what spammers actually post.
var urlPattern = xurls.Relaxed()

// looksLikeSpam reports whether text contains a URL or an @handle token.
func looksLikeSpam(text string) bool {
	if urlPattern.MatchString(text) {
		return true
	}
	for _, word := range strings.Fields(text) {
		if len(word) > 1 && word[0] == '@' {
			return true
		}
	}
	return false
}
