// Package codec implements the Codec component: a round-trip byte encoding
// for values flowing to and from the SharedTier, backed by msgpack rather
// than JSON for its smaller wire size and faster encode/decode path.
package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kestrelcache/tiercache/cachetype"
)

// EncodeFault wraps a failure to serialize a value for storage.
type EncodeFault struct{ Err error }

func (e *EncodeFault) Error() string { return fmt.Sprintf("codec: encode: %v", e.Err) }
func (e *EncodeFault) Unwrap() error { return e.Err }

// DecodeFault wraps a failure to deserialize stored bytes back into a value.
type DecodeFault struct{ Err error }

func (e *DecodeFault) Error() string { return fmt.Sprintf("codec: decode: %v", e.Err) }
func (e *DecodeFault) Unwrap() error { return e.Err }

// Encode serializes value for storage in the SharedTier.
func Encode[T any](value T) ([]byte, error) {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return nil, &EncodeFault{Err: err}
	}
	return b, nil
}

// Decode deserializes data into a T, using tok only to report a clearer
// error on mismatch — msgpack itself performs the structural decode.
func Decode[T any](data []byte, tok cachetype.Token[T]) (T, error) {
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return out, &DecodeFault{Err: fmt.Errorf("as %s: %w", tok, err)}
	}
	return out, nil
}

// absentSentinel is the wire representation a tier stores for a
// confirmed-absent entry (the cachetype absence sentinel). It is a msgpack
// fixext1 value of the unregistered extension type 127, which Encode never
// produces; the msgpack nil byte (0xc0) cannot serve, since nil pointers,
// slices and maps encode to it.
var absentSentinel = []byte{0xd4, 0x7f, 0x00}

// AbsentBytes returns the wire sentinel for a confirmed absence, for the
// SharedTier to store in place of an encoded value.
func AbsentBytes() []byte {
	b := make([]byte, len(absentSentinel))
	copy(b, absentSentinel)
	return b
}

// IsAbsent reports whether data is the absence sentinel written by
// AbsentBytes, as opposed to an encoded value.
func IsAbsent(data []byte) bool {
	return bytes.Equal(data, absentSentinel)
}
