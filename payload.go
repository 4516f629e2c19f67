package wspub

import (
	"bytes"
	stdjson "encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
)

// RawPayload is a pre-encoded JSON object or array. The JSON codec sends it
// verbatim; the CBOR codec transcodes it.
type RawPayload []byte

func (r RawPayload) MarshalJSON() ([]byte, error) {
	if !isJSONContainer(r) {
		return nil, ErrInvalidPayload
	}
	return []byte(r), nil
}

func (r RawPayload) MarshalCBOR() ([]byte, error) {
	if !isJSONContainer(r) {
		return nil, ErrInvalidPayload
	}
	var v any
	if err := json.Unmarshal(r, &v); err != nil {
		return nil, err
	}
	return cbor.Marshal(v)
}

// IsStructured reports whether Publish accepts v: a non-nil map, struct,
// slice or array (or a pointer to one), or a RawPayload or
// encoding/json.RawMessage holding a JSON object or array.
func IsStructured(v any) bool {
	switch p := v.(type) {
	case nil:
		return false
	case RawPayload:
		return isJSONContainer(p)
	case stdjson.RawMessage:
		return isJSONContainer(p)
	case []byte:
		return false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return !rv.IsNil()
	case reflect.Struct, reflect.Array:
		return true
	default:
		return false
	}
}

func isJSONContainer(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}
