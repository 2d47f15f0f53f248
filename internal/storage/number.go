package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// LooseNumber decodes any JSON value without failing. Numbers and numeric
// strings keep their value, out-of-range numbers saturate to ±Inf, and
// null, booleans, objects, arrays or other strings decode as 0.
type LooseNumber float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *LooseNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*n = 0
		return nil
	}

	var text string
	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &text); err != nil {
			*n = 0
			return nil
		}
		text = strings.TrimSpace(text)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(data)
	default:
		*n = 0
		return nil
	}

	*n = LooseNumber(parseLoose(text))
	return nil
}

// parseLoose parses s as a float. A range error keeps the saturated value
// ParseFloat returns; anything unparseable or NaN is 0.
func parseLoose(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	if math.IsNaN(v) {
		return 0
	}
	return v
}
