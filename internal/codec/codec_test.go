package codec_test

import (
	"crypto/rand"
	"regexp"
	"testing"

	"github.com/multiformats/go-multibase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/codec"
)

var base64urlAlphabet = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

func TestRoundTrip(t *testing.T) {
	buf := make([]byte, 16384)
	_, err := rand.Read(buf)
	require.NoError(t, err)

	encoded, err := codec.Encode(buf)
	require.NoError(t, err)
	require.True(t, len(encoded) > 1)
	assert.Equal(t, byte('u'), encoded[0])
	assert.True(t, base64urlAlphabet.MatchString(encoded[1:]))

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, buf, decoded)
}

func TestRoundTripEmptyBuffer(t *testing.T) {
	buf := make([]byte, 16384)

	encoded, err := codec.Encode(buf)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, buf, decoded)
}

func TestDecodeEmptyInput(t *testing.T) {
	_, err := codec.Decode("")
	require.Error(t, err)
}

func TestDecodeMalformedBase64(t *testing.T) {
	_, err := codec.Decode("u!!!not-base64!!!")
	require.Error(t, err)
}

func TestDecodeMalformedGzip(t *testing.T) {
	// Multibase-wrap bytes that are not a gzip stream at all.
	encoded, err := multibase.Encode(multibase.Base64url, []byte("definitely not a gzip stream"))
	require.NoError(t, err)

	_, err = codec.Decode(encoded)
	require.Error(t, err)
}
