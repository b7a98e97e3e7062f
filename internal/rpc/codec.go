// Package rpc carries the record store over gRPC. Messages are encoded with
// the models' binary (protobuf wire) encoding through a forced codec, and
// the service descriptor is written by hand.
package rpc

import (
	"encoding"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

// Message is any value the codec can carry.
type Message interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// CodecName is registered as the gRPC content subtype.
const CodecName = "gophchat-wire"

// Codec implements grpc/encoding.Codec for Message values.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("rpc codec: cannot marshal %T: %w", v, common.ErrInvalidInput)
	}
	return m.MarshalBinary()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("rpc codec: cannot unmarshal into %T: %w", v, common.ErrInvalidInput)
	}
	return m.UnmarshalBinary(data)
}
