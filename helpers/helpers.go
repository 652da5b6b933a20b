package helpers

import (
	"encoding/json"
	"time"
)

// FormatMillisTime renders a millisecond epoch timestamp as HH:MM:SS.
func FormatMillisTime(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}

// ToJSONString converts any value to JSON string.
func ToJSONString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
