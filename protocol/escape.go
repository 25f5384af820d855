package protocol

import (
	"net/url"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// Escape percent encodes s so it survives as a single token. Letters, digits
// and -_.!~*'() are kept as is, every other byte is written as %XX.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldKeep(c) {
			b.WriteByte(c)
			continue
		}

		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}

	return b.String()
}

// Unescape reverses Escape. Malformed escapes leave s untouched, peers are
// free to send us garbage and it is still better shown than dropped.
func Unescape(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}

	return out
}

func shouldKeep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}

	return false
}
