package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ParseTimestamp decodes node_last_update in any form the backend emits:
// extended JSON {"$date": ...}, RFC 3339 strings, or unix milliseconds.
// Missing or null values decode to the zero time.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	switch raw[0] {
	case '{':
		return parseExtendedDate(raw)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		return parseTimestampString(s)
	default:
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %s", ErrInvalidField, string(raw))
		}
		return time.UnixMilli(ms).UTC(), nil
	}
}

// FormatTimestamp renders a decoded timestamp for display.
func FormatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

type extendedDateDoc struct {
	At bson.DateTime `bson:"at"`
}

func parseExtendedDate(raw json.RawMessage) (time.Time, error) {
	doc := make([]byte, 0, len(raw)+8)
	doc = append(doc, `{"at":`...)
	doc = append(doc, raw...)
	doc = append(doc, '}')

	var out extendedDateDoc
	if err := bson.UnmarshalExtJSON(doc, false, &out); err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %s: %v", ErrInvalidField, string(raw), err)
	}
	return out.At.Time().UTC(), nil
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidField, s)
}
