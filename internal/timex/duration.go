// Package timex holds small time helpers shared by config and the sync engine.
package timex

import (
	"encoding/json"
	"errors"
	"time"
)

// Minute is the stamp unit used when a list item has to be pushed below its
// neighbour. Stamps are Unix milliseconds.
const Minute int64 = 60 * 1000

// Duration wraps time.Duration so JSON can carry "3s" style strings or plain
// integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Millis returns t as Unix milliseconds, the stamp format used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
