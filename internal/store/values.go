package store

import (
	"time"

	"consentsync/internal/normalize"
)

// timeArg encodes a timestamp for the dialect. The zero time is stored as NULL.
func (d dialect) timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	if d.numbered {
		return t.UTC()
	}
	return normalize.FormatTimestamp(t)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// decodeTime converts a scanned timestamp column. Unparseable or missing
// values decode to the zero time, which never compares as newer.
func decodeTime(raw any) time.Time {
	switch v := raw.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v.UTC()
	case string:
		ts, err := normalize.Timestamp(v)
		if err != nil {
			return time.Time{}
		}
		return ts
	case []byte:
		ts, err := normalize.Timestamp(string(v))
		if err != nil {
			return time.Time{}
		}
		return ts
	case int64:
		return time.Unix(v, 0).UTC()
	default:
		return time.Time{}
	}
}
