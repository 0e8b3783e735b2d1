package relocate

import (
	"crypto/sha256"
	"strings"

	elf "github.com/appsworld/go-elf"
)

// crockfordAlphabet is Crockford's base32, distinct from RFC 4648:
// it omits I, L, O, U to avoid visual confusion with 1, 1, 0, V.
const crockfordAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var crockfordDecodeMap = buildDecodeMap()

func buildDecodeMap() [256]int8 {
	var m [256]int8
	for i := range m {
		m[i] = -1
	}
	for i := 0; i < len(crockfordAlphabet); i++ {
		m[crockfordAlphabet[i]] = int8(i)
	}
	// Crockford's spec treats these as visually-ambiguous aliases.
	m['i'], m['I'] = 1, 1
	m['l'], m['L'] = 1, 1
	m['o'], m['O'] = 0, 0
	return m
}

// EncodedLen returns the encoded length of n source bytes.
func EncodedLen(n int) int {
	return (n*8 + 4) / 5
}

// MaxDecodedLen returns the maximum number of decoded bytes for n
// encoded characters.
func MaxDecodedLen(n int) int {
	return n * 5 / 8
}

// Encode returns the Crockford base32 encoding of data, lowercase, no
// padding.
func Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(EncodedLen(len(data)))

	var buf uint64
	bits := 0
	for _, b := range data {
		buf = buf<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(crockfordAlphabet[(buf>>uint(bits))&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(crockfordAlphabet[(buf<<uint(5-bits))&0x1f])
	}
	return sb.String()
}

// Decode reverses Encode, rejecting any character outside the
// Crockford alphabet (and its documented ambiguous aliases).
func Decode(s string) ([]byte, error) {
	out := make([]byte, 0, MaxDecodedLen(len(s)))
	var buf uint64
	bits := 0
	for i := 0; i < len(s); i++ {
		v := crockfordDecodeMap[s[i]]
		if v < 0 {
			return nil, &elf.Error{Kind: elf.KindCStr, Msg: "invalid base32 character"}
		}
		buf = buf<<5 | uint64(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>uint(bits)))
		}
	}
	return out, nil
}

// Hash32 returns the Crockford base32 encoding of data's SHA-256
// digest, the content-addressed name used by the relocator (spec
// §4.F). SHA-256 itself is stdlib: no example repo in the corpus
// carries a third-party hash library, and crypto/sha256 is the
// ecosystem-standard choice even in library-heavy Go codebases.
func Hash32(data []byte) string {
	sum := sha256.Sum256(data)
	return Encode(sum[:])
}
