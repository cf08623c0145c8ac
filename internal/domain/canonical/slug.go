package canonical

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveAccents strips combining marks after NFKD decomposition.
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slug lowercases s, removes accents and joins the remaining alphanumeric
// runs with underscores.
func Slug(s string) string {
	s = strings.ToLower(RemoveAccents(s))
	var b strings.Builder
	pending := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// ShortName abbreviates a name for task type and project codes:
// underscore separated words give their initials, longer words lose their
// vowels, both capped at four letters. A trailing digit is repeated.
func ShortName(name string) string {
	code := strings.ToLower(name)
	switch {
	case strings.Contains(code, "_"):
		var b strings.Builder
		for _, word := range strings.Split(code, "_") {
			if word == "" {
				continue
			}
			r := []rune(word)
			b.WriteRune(r[0])
		}
		code = truncate(b.String(), 4)
	case len([]rune(name)) > 4:
		code = truncate(strings.Map(func(r rune) rune {
			switch r {
			case 'a', 'e', 'i', 'o', 'u':
				return -1
			}
			return r
		}, code), 4)
	}
	if code == "" {
		return code
	}
	r := []rune(code)
	if last := r[len(r)-1]; unicode.IsDigit(last) {
		code += string(last)
	}
	return code
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
