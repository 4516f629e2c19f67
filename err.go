package wspub

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/captionrelay/wspub/pkg/transport"
	"github.com/goccy/go-json"
)

var (
	// ErrInvalidPayload reports a record that is not a map, struct, slice or
	// pre-encoded JSON object or array.
	ErrInvalidPayload = errors.New("wspub: payload is not a structured record")
	// ErrNotOpen is the reason recorded when a record is queued because the
	// connection is not open.
	ErrNotOpen = errors.New("wspub: connection is not open")
)

// EncodeError reports a record the codec could not encode, such as one
// holding a NaN or a channel. The record stays queued and the connection is
// left open.
type EncodeError struct {
	Codec string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("wspub: failed to encode record with %s codec: %v", e.Codec, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

const unknownError = "unknown error"

// NormalizeError reduces any failure value to a human-readable message. It
// never returns an empty string.
func NormalizeError(v any) string {
	msg := describeError(v)
	if strings.TrimSpace(msg) == "" {
		return unknownError
	}
	return msg
}

func describeError(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case *transport.Error:
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Op
	case error:
		return e.Error()
	case interface{ Message() string }:
		return e.Message()
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	for _, name := range []string{"Message", "message", "Type", "type"} {
		if s, ok := stringMember(rv, name); ok {
			return s
		}
	}

	if data, err := json.Marshal(v); err == nil {
		if s := string(data); s != "{}" && s != "null" && s != `""` {
			return s
		}
	}
	return fmt.Sprint(v)
}

// stringMember returns the non-empty string stored under name in a struct
// field or a string-keyed map.
func stringMember(rv reflect.Value, name string) (string, bool) {
	var member reflect.Value
	switch rv.Kind() {
	case reflect.Struct:
		member = rv.FieldByName(name)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return "", false
		}
		member = rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
	default:
		return "", false
	}
	if !member.IsValid() {
		return "", false
	}
	if member.Kind() == reflect.Interface {
		member = member.Elem()
	}
	if member.Kind() != reflect.String || member.Len() == 0 {
		return "", false
	}
	return member.String(), true
}
