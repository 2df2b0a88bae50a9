package bigtext

import (
	"math/big"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 10, 255, 1_000_000, 18_446_744_073_709_551_615}
	for _, v := range values {
		enc := EncodeUint64AsText(v)
		require.Len(t, enc, Width)
		got, err := DecodeToUint64(enc)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestEncodePreservesNumericOrder(t *testing.T) {
	nums := []int64{0, 1, 9, 10, 99, 100, 12345, 999999999}
	encoded := make([]string, len(nums))
	for i, n := range nums {
		s, err := EncodeAsText(big.NewInt(n))
		require.NoError(t, err)
		encoded[i] = s
	}

	sortedNums := append([]int64(nil), nums...)
	sort.Slice(sortedNums, func(i, j int) bool { return sortedNums[i] < sortedNums[j] })

	sortedEncoded := append([]string(nil), encoded...)
	sort.Strings(sortedEncoded)

	for i, n := range sortedNums {
		s, err := EncodeAsText(big.NewInt(n))
		require.NoError(t, err)
		require.Equal(t, sortedEncoded[i], s)
	}
}

func TestEncodeOverflow(t *testing.T) {
	_, err := EncodeAsText(big.NewInt(-1))
	require.ErrorIs(t, err, ErrEncodeOverflow)

	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(Width), nil)
	_, err = EncodeAsText(huge)
	require.ErrorIs(t, err, ErrEncodeOverflow)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := DecodeToBigInt("not-a-number")
	require.Error(t, err)
}

func TestDecodeZero(t *testing.T) {
	n, err := DecodeToBigInt("0000000000000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, int64(0), n.Int64())
}
