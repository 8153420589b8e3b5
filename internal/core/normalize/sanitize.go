package normalize

import (
	"strings"
	"unicode/utf8"
)

// Sanitize strips bytes that must never reach the database or the
// parser pipeline: NUL, ASCII controls other than \n \r \t, DEL,
// the C1 range U+0080..U+009F, and invalid UTF-8 sequences. Social
// post text is full of these. Clean input returns s without a copy
func Sanitize(s string) string {
	if s == "" {
		return s
	}

	n := len(s)
	i := 0

	// scan ahead, most strings are already clean
	for i < n {
		b := s[i]
		if b < 0x20 {
			if b == '\n' || b == '\r' || b == '\t' {
				i++
				continue
			}
			break
		}
		if b == 0x7F {
			break
		}
		if b < 0x80 {
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			break // invalid byte
		}
		if r >= 0x80 && r <= 0x9F {
			break // C1 control
		}
		i += size
	}
	if i == n {
		return s
	}

	// rebuild from the first bad byte, keeping the clean prefix
	var out strings.Builder
	out.Grow(n)
	out.WriteString(s[:i])

	for i < n {
		c := s[i]

		if c < 0x20 {
			if c == '\n' || c == '\r' || c == '\t' {
				out.WriteByte(c)
			}
			i++
			continue
		}
		if c == 0x7F {
			i++
			continue
		}
		if c < 0x80 {
			out.WriteByte(c)
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			i++ // drop invalid byte
			continue
		}
		if r >= 0x80 && r <= 0x9F {
			i += size // drop C1 control
			continue
		}

		// good rune, copy the exact bytes without re-encoding
		out.WriteString(s[i : i+size])
		i += size
	}

	return out.String()
}
