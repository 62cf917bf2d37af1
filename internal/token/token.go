// Package token encodes human-readable identifiers (subject names, student
// names, ISO dates) into callback-data and filename safe tokens and back.
// The alphabet is percent-encoding over unreserved characters, with the
// underscore excluded from the safe set because it delimits fields in
// callback payloads and sheet filenames.
package token

import "strings"

const upperhex = "0123456789ABCDEF"

func safe(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '~':
		return true
	default:
		return false
	}
}

// Encode converts raw text into a transport-safe token. It is pure and
// total; Decode(Encode(x)) == x for every x.
func Encode(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if safe(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[b>>4])
		sb.WriteByte(upperhex[b&0x0f])
	}
	return sb.String()
}

// Decode reverses Encode. Malformed or truncated escapes are passed through
// verbatim rather than failing: callers validate the decoded value against
// known subjects or the roster before trusting it.
func Decode(tok string) string {
	var sb strings.Builder
	sb.Grow(len(tok))
	for i := 0; i < len(tok); i++ {
		b := tok[i]
		if b == '%' && i+2 < len(tok) {
			hi, okHi := unhex(tok[i+1])
			lo, okLo := unhex(tok[i+2])
			if okHi && okLo {
				sb.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

func unhex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}
