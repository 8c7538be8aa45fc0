package storage

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeLayout is fixed width so that text comparison orders chronologically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Time is a UTC timestamp persisted as TimeLayout text.
type Time struct {
	time.Time
}

// Now returns the current time truncated to what TimeLayout can hold.
func Now() Time {
	return Time{time.Now().UTC()}
}

// NewTime wraps t.
func NewTime(t time.Time) Time {
	return Time{t.UTC()}
}

// FormatTime renders t the way it is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func (t Time) Value() (driver.Value, error) {
	return FormatTime(t.Time), nil
}

func (t *Time) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("storage.Time: unsupported Scan type %T", value)
	}
}

func (t *Time) parse(s string) error {
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("storage.Time: %w", err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}

// MarshalJSON renders the wrapped time as RFC 3339.
func (t Time) MarshalJSON() ([]byte, error) {
	return t.Time.MarshalJSON()
}
