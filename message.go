package wspub

import (
	"time"

	"github.com/buger/jsonparser"
	"github.com/captionrelay/wspub/pkg/transport"
)

// Message is an inbound frame, delivered to OnMessage unmodified.
type Message struct {
	Kind       transport.MessageKind
	Data       []byte
	ReceivedAt time.Time
}

func (m Message) Text() string {
	return string(m.Data)
}

// Field looks up the value at the given JSON path without decoding the
// whole frame. Strings are returned unquoted; other values are returned as
// raw JSON. It reports false when the frame is not JSON or the path is
// missing.
func (m Message) Field(keys ...string) (string, bool) {
	value, dataType, _, err := jsonparser.Get(m.Data, keys...)
	if err != nil || dataType == jsonparser.NotExist {
		return "", false
	}
	if dataType == jsonparser.String {
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return "", false
		}
		return s, true
	}
	return string(value), true
}
