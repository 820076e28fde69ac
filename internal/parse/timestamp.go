package parse

import (
	"encoding/json"
	"strconv"
	"time"
)

// flexTimestamp accepts either an ISO-8601 string or an integer number of
// milliseconds since the epoch (§6 "Timestamps are ISO-8601 strings or
// ms-since-epoch integers; both are accepted").
type flexTimestamp struct {
	t    time.Time
	zero bool
}

func (f *flexTimestamp) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, ok := parseFlexTimestamp(raw)
	if !ok {
		f.zero = true
		return nil
	}
	f.t = t
	return nil
}

// parseFlexTimestamp converts a decoded JSON scalar (string, float64, or
// json.Number) into a time.Time, accepting ISO-8601 strings and epoch
// milliseconds.
func parseFlexTimestamp(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return msToTime(ms), true
		}
		return time.Time{}, false
	case float64:
		return msToTime(int64(v)), true
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return msToTime(ms), true
	default:
		return time.Time{}, false
	}
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// stripBOM removes a leading UTF-8 byte-order mark, if present (§4.2).
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
