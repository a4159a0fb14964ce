package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseInt accepts a JSON number or a JSON numeral string.
// Backend versions disagree on which one they send for port/register/modifier.
func ParseInt(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: numeric value missing", ErrInvalidField)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		return ParseNumeral(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrInvalidField, string(raw))
	}
	v, ok := integral(n.String())
	if !ok {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidField, n.String())
	}
	return v, nil
}

// integral parses a JSON number that denotes a whole value, including forms
// such as 3.0 or 5e2.
func integral(num string) (int, bool) {
	if v, err := strconv.ParseInt(num, 10, 64); err == nil {
		return int(v), true
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int(f), true
}

// ParseNumeral converts a decimal numeral string to an int.
func ParseNumeral(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a numeral", ErrInvalidField, s)
	}
	return v, nil
}
