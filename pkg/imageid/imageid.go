// Package imageid mints and validates screenshot identifiers.
//
// An identifier is 8 bytes, base-32 encoded with a lowercase alphabet and no
// padding, giving 13 characters over [a-z2-7]. The first 4 bytes are random
// and the last 4 are the big-endian Unix time in seconds, so identifiers are
// unguessable but still roughly ordered by creation time.
//
// Identifiers are used directly as path segments and object keys, so every
// entry point that accepts one from outside must check it with Valid.
package imageid

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"time"
)

const (
	// Length is the number of characters in an encoded identifier.
	Length = 13

	randomBytes = 4
	timeBytes   = 4
)

var (
	encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

	idPattern = regexp.MustCompile(`^[a-z2-7]{13}$`)

	defaultGenerator = &Generator{}
)

// Generator mints identifiers. The zero value uses crypto/rand and the wall
// clock; tests may substitute either.
type Generator struct {
	Now  func() time.Time
	Rand io.Reader
}

// Generate returns a new identifier. It panics only if the random source
// fails, which crypto/rand never does on supported platforms.
func (g *Generator) Generate() string {
	var buf [randomBytes + timeBytes]byte

	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	if _, err := io.ReadFull(src, buf[:randomBytes]); err != nil {
		panic(fmt.Sprintf("imageid: reading random bytes: %v", err))
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	binary.BigEndian.PutUint32(buf[randomBytes:], uint32(now().Unix()))

	return encoding.EncodeToString(buf[:])
}

// Generate returns a new identifier from the default generator.
func Generate() string {
	return defaultGenerator.Generate()
}

// Valid reports whether id has the exact shape of a generated identifier.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// Timestamp decodes the creation time embedded in id.
func Timestamp(id string) (time.Time, error) {
	if !Valid(id) {
		return time.Time{}, fmt.Errorf("invalid image id %q", id)
	}

	raw, err := encoding.DecodeString(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode image id %q: %w", id, err)
	}

	secs := binary.BigEndian.Uint32(raw[randomBytes:])
	return time.Unix(int64(secs), 0).UTC(), nil
}
