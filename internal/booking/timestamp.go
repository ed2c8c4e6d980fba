package booking

import "time"

// Timestamp is a slot instant stored as whole seconds plus nanoseconds.
// Slot identity is equality on both parts.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int32 `json:"nanoseconds"`
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Seconds:     t.Unix(),
		Nanoseconds: int32(t.Nanosecond()),
	}
}

func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanoseconds)).UTC()
}

func (ts Timestamp) Equal(o Timestamp) bool {
	return ts.Seconds == o.Seconds && ts.Nanoseconds == o.Nanoseconds
}

// Compare returns -1, 0 or +1.
func (ts Timestamp) Compare(o Timestamp) int {
	switch {
	case ts.Seconds < o.Seconds:
		return -1
	case ts.Seconds > o.Seconds:
		return 1
	case ts.Nanoseconds < o.Nanoseconds:
		return -1
	case ts.Nanoseconds > o.Nanoseconds:
		return 1
	}
	return 0
}

func (ts Timestamp) Before(t time.Time) bool {
	return ts.Compare(NewTimestamp(t)) < 0
}

func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanoseconds == 0
}

func (ts Timestamp) String() string {
	return ts.Time().Format(time.RFC3339Nano)
}
