// Package codec converts application values to and from the opaque byte
// representation that gets encrypted. The codec is pluggable; CBOR is the
// default.
package codec

import "github.com/fxamacker/cbor/v2"

// Codec serializes values for encryption.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CBOR implements Codec using canonical CBOR encoding.
type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (CBOR) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// Default is the codec used when none is configured.
var Default Codec = CBOR{}
