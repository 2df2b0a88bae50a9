// Package bigtext encodes arbitrary-precision non-negative integers as
// fixed-width, zero-padded decimal text so that lexicographic ordering of
// the encoded strings matches numeric ordering. This is the convention used
// for every bigint-valued column in the sync store (block numbers,
// timestamps, interval bounds): SQLite compares TEXT columns
// lexicographically, and padded decimal text is the simplest encoding that
// survives that comparison correctly.
package bigtext

import (
	"errors"
	"math/big"
	"strings"
)

// Width is wide enough to hold any 256-bit unsigned integer in decimal
// (2^256-1 has 78 digits); one extra digit of headroom keeps comparisons
// correct even for theoretical 257-bit intermediate values.
const Width = 79

// ErrEncodeOverflow is returned when a value cannot be represented in the
// fixed-width encoding: negative values, or values whose decimal
// representation exceeds Width digits.
var ErrEncodeOverflow = errors.New("bigtext: value does not fit in fixed-width encoding")

// EncodeAsText renders n as Width-digit, zero-padded decimal text.
func EncodeAsText(n *big.Int) (string, error) {
	if n == nil {
		return "", errors.New("bigtext: nil value")
	}
	if n.Sign() < 0 {
		return "", ErrEncodeOverflow
	}
	s := n.Text(10)
	if len(s) > Width {
		return "", ErrEncodeOverflow
	}
	if len(s) == Width {
		return s, nil
	}
	var b strings.Builder
	b.Grow(Width)
	b.WriteString(strings.Repeat("0", Width-len(s)))
	b.WriteString(s)
	return b.String(), nil
}

// EncodeUint64AsText is a convenience wrapper for the common case of
// encoding a block number, log index, or similar small non-negative value.
func EncodeUint64AsText(n uint64) string {
	s, err := EncodeAsText(new(big.Int).SetUint64(n))
	if err != nil {
		// Width comfortably covers every uint64; this cannot happen.
		panic(err)
	}
	return s
}

// DecodeToBigInt parses a fixed-width padded string back into a big.Int,
// stripping the leading zero padding.
func DecodeToBigInt(s string) (*big.Int, error) {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("bigtext: invalid encoded text " + s)
	}
	return n, nil
}

// DecodeToUint64 is a convenience wrapper for columns known to fit in 64
// bits (block numbers, log indexes, timestamps in practice).
func DecodeToUint64(s string) (uint64, error) {
	n, err := DecodeToBigInt(s)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, ErrEncodeOverflow
	}
	return n.Uint64(), nil
}
