package reports

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Millis is a report time in Unix milliseconds. Apps have written it as a
// number, a numeric string and an RFC3339 date, all of which are read.
// Anything else reads as zero so the report is still listed.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	*m = 0

	if trimmed == "" || trimmed == "null" {
		return nil
	}

	text := trimmed
	if trimmed[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
	}

	if number, err := strconv.ParseFloat(text, 64); err == nil {
		*m = Millis(number)
		return nil
	}

	if date, err := time.Parse(time.RFC3339, text); err == nil {
		*m = Millis(date.UnixMilli())
	}

	return nil
}

func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}
