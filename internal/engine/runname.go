package engine

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxOwnerSlug = 24

// RunName derives a unique, filesystem- and engine-safe name for one run of a
// chain, e.g. "jose-42-1f3a9c2b". The suffix differs on every call so retried
// chains never collide with leftovers of an earlier attempt.
func RunName(owner string, chainID int64) string {
	slug := OwnerSlug(owner)
	if slug == "" {
		slug = "chain"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return slug + "-" + strconv.FormatInt(chainID, 10) + "-" + suffix
}

// OwnerSlug lowercases owner, strips accents and collapses everything that is
// not a letter or digit into single dashes.
func OwnerSlug(owner string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripper, owner)
	if err != nil {
		plain = owner
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxOwnerSlug {
		slug = strings.TrimRight(slug[:maxOwnerSlug], "-")
	}
	return slug
}
