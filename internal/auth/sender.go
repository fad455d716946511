package auth

import (
	"strings"
	"unicode"

	"github.com/vovakirdan/privroom/internal/utils"
)

const maxSenderRunes = 32

// ResolveSender turns an optional display name into the session's sender tag.
// The tag is always minted by the server: a display name gets a random
// "#1a2b3c" suffix, so two sessions picking the same name stay apart, and an
// empty name yields a guest tag.
func ResolveSender(name string) string {
	display := sanitizeName(name)
	if display == "" {
		return utils.NewGuestTag()
	}
	return display + "#" + utils.NewTagSuffix()
}

// sanitizeName drops control characters, collapses whitespace runs to one
// space and cuts the result to 32 runes.
func sanitizeName(name string) string {
	var b strings.Builder
	runes := 0
	space := false
	for _, r := range strings.TrimSpace(name) {
		if runes == maxSenderRunes {
			break
		}
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r) || !unicode.IsPrint(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteRune(' ')
			runes++
			if runes == maxSenderRunes {
				break
			}
		}
		space = false
		b.WriteRune(r)
		runes++
	}

	return strings.TrimSpace(b.String())
}
