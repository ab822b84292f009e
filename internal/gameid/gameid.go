// Package gameid generates sortable game identifiers: a UUIDv7 rendered as 26
// characters of lowercase Crockford base32, in the style of TypeID.
package gameid

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of an encoded ID. 26 characters carry 130 bits; the two leading
// bits are always zero.
const Length = 26

// ErrInvalid is wrapped by every Validate and Parse failure.
var ErrInvalid = errors.New("invalid game ID")

// Generator creates game IDs. A nil reader uses crypto/rand via the uuid
// package.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator that draws randomness from r.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate creates a new game ID.
func Generate() string {
	id, err := NewGenerator(nil).Generate()
	if err != nil {
		panic("failed to generate game id: " + err.Error())
	}
	return id
}

// Generate creates a new game ID from the generator's randomness.
func (g *Generator) Generate() (string, error) {
	var (
		u   uuid.UUID
		err error
	)
	if g.rand == nil {
		u, err = uuid.NewV7()
	} else {
		u, err = uuid.NewV7FromReader(g.rand)
	}
	if err != nil {
		return "", err
	}
	return Encode(u), nil
}

// bit returns bit pos of data counting from the most significant end.
// Negative positions are the zero padding in front of the UUID.
func bit(data uuid.UUID, pos int) uint8 {
	if pos < 0 {
		return 0
	}
	return (data[pos/8] >> (7 - pos%8)) & 1
}

// Encode renders u as a 26-character base32 string.
func Encode(u uuid.UUID) string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		var v uint8
		for j := 0; j < 5; j++ {
			v = v<<1 | bit(u, i*5+j-2)
		}
		b.WriteByte(alphabet[v])
	}
	return b.String()
}

// Parse decodes an encoded ID back into its UUID.
func Parse(id string) (uuid.UUID, error) {
	var u uuid.UUID
	if err := Validate(id); err != nil {
		return u, err
	}
	for i := 0; i < Length; i++ {
		v := uint8(strings.IndexByte(alphabet, id[i]))
		for j := 0; j < 5; j++ {
			pos := i*5 + j - 2
			if pos < 0 || v&(1<<(4-j)) == 0 {
				continue
			}
			u[pos/8] |= 1 << (7 - pos%8)
		}
	}
	return u, nil
}

// Validate checks if a game ID is valid (26 characters, valid base32)
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("%w: must be exactly %d characters, got %d", ErrInvalid, Length, len(id))
	}

	// Check first character doesn't exceed 7 (to ensure it represents ≤ 128 bits)
	if id[0] > '7' {
		return fmt.Errorf("%w: first character must be 0-7, got %c", ErrInvalid, id[0])
	}

	for i := 0; i < len(id); i++ {
		if strings.IndexByte(alphabet, id[i]) < 0 {
			return fmt.Errorf("%w: invalid character %c at position %d", ErrInvalid, id[i], i)
		}
	}
	return nil
}
