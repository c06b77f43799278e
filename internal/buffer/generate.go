// Package buffer holds the input generator and the two buffer representations
// compared by the harness: an owned copy and a reference-counted shared cell.
package buffer

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"
)

// UppercaseAlphabet is the default alphabet for generated input.
const UppercaseAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// MaxSize is the largest number of characters Generate produces.
const MaxSize = 1 << 30

var (
	// ErrInvalidSize is returned when the requested size is outside 1..MaxSize.
	ErrInvalidSize = errors.New("buffer size must be between 1 and 1073741824")
	// ErrEmptyAlphabet is returned when there are no characters to pick from.
	ErrEmptyAlphabet = errors.New("alphabet must not be empty")
	// ErrInvalidAlphabet is returned for an alphabet that is not valid UTF-8.
	ErrInvalidAlphabet = errors.New("alphabet must be valid UTF-8")
)

// NewRand returns a PCG-backed generator. A zero seed picks one from the clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate returns a string of exactly n characters, each chosen uniformly
// at random from the distinct characters of alphabet.
func Generate(n int, alphabet string, rng *rand.Rand) (string, error) {
	if n <= 0 || n > MaxSize {
		return "", ErrInvalidSize
	}
	if alphabet == "" {
		return "", ErrEmptyAlphabet
	}
	if !utf8.ValidString(alphabet) {
		return "", ErrInvalidAlphabet
	}
	if rng == nil {
		rng = NewRand(0)
	}

	chars, width := distinctRunes(alphabet)

	// Single-byte alphabets take the fast path.
	if width == 1 {
		out := make([]byte, n)
		for i := range out {
			out[i] = byte(chars[rng.IntN(len(chars))])
		}
		return string(out), nil
	}

	var sb strings.Builder
	sb.Grow(n * width)
	for i := 0; i < n; i++ {
		sb.WriteRune(chars[rng.IntN(len(chars))])
	}
	return sb.String(), nil
}

// distinctRunes returns the characters of alphabet in first-seen order
// without repeats, and the widest encoding among them in bytes.
func distinctRunes(alphabet string) ([]rune, int) {
	seen := make(map[rune]struct{}, len(alphabet))
	chars := make([]rune, 0, len(alphabet))
	width := 1
	for _, r := range alphabet {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		chars = append(chars, r)
		if w := utf8.RuneLen(r); w > width {
			width = w
		}
	}
	return chars, width
}
