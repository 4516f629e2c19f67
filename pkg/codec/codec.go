// Package codec serializes outbound records into websocket frames.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/captionrelay/wspub/pkg/transport"
	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
)

var ErrUnknownCodec = errors.New("codec: unknown codec")

type Marshaler interface {
	Marshal(v any) ([]byte, error)
}

// Codec turns a record into the payload of a single frame of Kind.
type Codec interface {
	Marshaler
	Kind() transport.MessageKind
	Name() string
}

type jsonCodec struct{}

// JSON encodes records as JSON text frames.
func JSON() Codec {
	return jsonCodec{}
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Kind() transport.MessageKind {
	return transport.Text
}

func (jsonCodec) Name() string {
	return "json"
}

type cborCodec struct {
	em cbor.EncMode
}

// CBOR encodes records as CBOR binary frames. Map keys are sorted so equal
// records always produce identical frames.
func CBOR() Codec {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("BUG: canonical CBOR options rejected: %v", err))
	}
	return cborCodec{em: em}
}

func (c cborCodec) Marshal(v any) ([]byte, error) {
	return c.em.Marshal(v)
}

func (cborCodec) Kind() transport.MessageKind {
	return transport.Binary
}

func (cborCodec) Name() string {
	return "cbor"
}

// ByName returns the codec registered under name. The empty name selects
// JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
