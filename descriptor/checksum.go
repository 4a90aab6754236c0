package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// inputCharset is the set of characters a descriptor may contain,
	// ordered so that the most common characters form the first group of
	// 32.
	inputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
		"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
		"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

	// checksumCharset is the bech32 character set used for the checksum.
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

	// ChecksumLength is the number of characters in a checksum.
	ChecksumLength = 8
)

var (
	// ErrInvalidChecksum is returned when a descriptor carries a checksum
	// that doesn't match its body.
	ErrInvalidChecksum = errors.New("invalid descriptor checksum")

	// checksumGenerator are the generator constants of the BCH code.
	checksumGenerator = [5]uint64{
		0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a,
		0x644d626ffd,
	}
)

func polymod(c uint64, val int) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ uint64(val)
	for i, gen := range checksumGenerator {
		if (c0>>uint(i))&1 != 0 {
			c ^= gen
		}
	}

	return c
}

// Checksum computes the 8 character checksum of a descriptor body.
func Checksum(desc string) (string, error) {
	c := uint64(1)
	cls, clsCount := 0, 0

	for i, ch := range desc {
		pos := strings.IndexRune(inputCharset, ch)
		if pos < 0 {
			return "", fmt.Errorf("invalid character %q at "+
				"position %d", ch, i)
		}

		// Emit a symbol for the position inside the group, and every
		// three characters the symbol for the groups themselves.
		c = polymod(c, pos&31)
		cls = cls*3 + (pos >> 5)
		clsCount++
		if clsCount == 3 {
			c = polymod(c, cls)
			cls, clsCount = 0, 0
		}
	}
	if clsCount > 0 {
		c = polymod(c, cls)
	}
	for i := 0; i < ChecksumLength; i++ {
		c = polymod(c, 0)
	}
	c ^= 1

	var sum strings.Builder
	for i := 0; i < ChecksumLength; i++ {
		sum.WriteByte(checksumCharset[(c>>(5*(7-uint(i))))&31])
	}

	return sum.String(), nil
}

// AddChecksum appends the checksum to a descriptor body.
func AddChecksum(desc string) (string, error) {
	sum, err := Checksum(desc)
	if err != nil {
		return "", err
	}

	return desc + "#" + sum, nil
}

// splitChecksum separates an optional trailing checksum from the body and
// verifies it.
func splitChecksum(desc string) (string, error) {
	idx := strings.LastIndexByte(desc, '#')
	if idx < 0 {
		// Make sure the body only uses valid characters even when no
		// checksum is given.
		_, err := Checksum(desc)
		return desc, err
	}

	body, sum := desc[:idx], desc[idx+1:]
	if len(sum) != ChecksumLength {
		return "", fmt.Errorf("%w: expected %d characters, got %d",
			ErrInvalidChecksum, ChecksumLength, len(sum))
	}

	expected, err := Checksum(body)
	if err != nil {
		return "", err
	}
	if sum != expected {
		return "", fmt.Errorf("%w: expected %s, got %s",
			ErrInvalidChecksum, expected, sum)
	}

	return body, nil
}
