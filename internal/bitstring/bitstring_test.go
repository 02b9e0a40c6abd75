package bitstring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/bitstring"
)

func TestNewRejectsBelowPrivacyFloor(t *testing.T) {
	_, err := bitstring.New(131071, 1)
	require.Error(t, err)
}

func TestNewRejectsInvalidStatusSize(t *testing.T) {
	for _, k := range []int{0, 3, 5, 7, 9, 16} {
		_, err := bitstring.New(131072, k)
		require.Errorf(t, err, "statusSize=%d should be rejected", k)
	}
}

func TestEmptyBitstringShape(t *testing.T) {
	buf, err := bitstring.New(131072, 1)
	require.NoError(t, err)
	assert.Len(t, buf, 16384)
	for _, b := range buf {
		assert.Zero(t, b)
	}
}

func TestSingleBitRevocationRoundTrip(t *testing.T) {
	buf, err := bitstring.New(131072, 1)
	require.NoError(t, err)

	buf, err = bitstring.Set(buf, 0, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x80), buf[0])

	v, err := bitstring.Get(buf, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestMultiBitWriteAtByteEnd(t *testing.T) {
	buf, err := bitstring.New(131072, 2)
	require.NoError(t, err)

	buf, err = bitstring.Set(buf, 3, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), buf[0])

	v, err := bitstring.Get(buf, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestGetSetRoundTripAllSizes(t *testing.T) {
	for _, statusSize := range []int{1, 2, 4, 8} {
		statusSize := statusSize
		t.Run("", func(t *testing.T) {
			buf, err := bitstring.New(bitstring.MinTotalEntries, statusSize)
			require.NoError(t, err)

			maxVal := 1 << statusSize
			// Exercise every bit offset reachable for this statusSize.
			for offset := 0; offset < 8; offset++ {
				index := offset / statusSize
				if index*statusSize != offset {
					continue
				}
				for v := 0; v < maxVal; v++ {
					out, err := bitstring.Set(buf, index, v, statusSize)
					require.NoError(t, err)

					got, err := bitstring.Get(out, index, statusSize)
					require.NoError(t, err)
					assert.Equal(t, v, got)

					// Every other cell in this byte-span must remain 0.
					for j := 0; j < 8/statusSize; j++ {
						if j == index {
							continue
						}
						other, err := bitstring.Get(out, j, statusSize)
						require.NoError(t, err)
						assert.Zero(t, other)
					}
				}
			}
		})
	}
}

func TestIndexEqualToTotalEntriesIsOutOfBounds(t *testing.T) {
	buf, err := bitstring.New(bitstring.MinTotalEntries, 1)
	require.NoError(t, err)

	total := bitstring.Capacity(buf, 1)
	_, err = bitstring.Get(buf, total, 1)
	require.Error(t, err)

	_, err = bitstring.Set(buf, total, 0, 1)
	require.Error(t, err)
}

func TestSetRejectsOutOfRangeValue(t *testing.T) {
	buf, err := bitstring.New(bitstring.MinTotalEntries, 2)
	require.NoError(t, err)

	_, err = bitstring.Set(buf, 0, 4, 2)
	require.Error(t, err)

	_, err = bitstring.Set(buf, 0, -1, 2)
	require.Error(t, err)
}
