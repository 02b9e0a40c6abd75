// Package codec implements the Bitstring Status List wire codec: GZIP
// compression under a multibase("u") base64url-nopad envelope.
package codec

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/multiformats/go-multibase"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
)

// Encode gzips buf at maximum compression and multibase-encodes the result
// with the base64url (no padding) alphabet, producing the "u"-prefixed
// encodedList wire form.
func Encode(buf []byte) (string, error) {
	var gz bytes.Buffer
	w, err := gzip.NewWriterLevel(&gz, gzip.BestCompression)
	if err != nil {
		return "", apierror.Wrap(apierror.CodecCompressionError, err)
	}
	if _, err := w.Write(buf); err != nil {
		_ = w.Close()
		return "", apierror.Wrap(apierror.CodecCompressionError, err)
	}
	if err := w.Close(); err != nil {
		return "", apierror.Wrap(apierror.CodecCompressionError, err)
	}

	encoded, err := multibase.Encode(multibase.Base64url, gz.Bytes())
	if err != nil {
		return "", apierror.Wrap(apierror.CodecCompressionError, err)
	}
	return encoded, nil
}

// Decode reverses Encode: multibase-decode then gunzip.
func Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, apierror.New(apierror.CodecDecodeError)
	}

	_, compressed, err := multibase.Decode(s)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodecDecodeError, err)
	}

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, apierror.Wrap(apierror.CodecDecodeError, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodecDecodeError, err)
	}
	return out, nil
}
