// Package persistence contains the PostgreSQL adapters for the
// outbound repository ports.
package persistence

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func toNullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func toNullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// toJSON marshals v for a jsonb column, nil in for SQL NULL out.
func toJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// fromJSON unmarshals a jsonb column into out, leaving out untouched
// for NULL.
func fromJSON(data []byte, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
