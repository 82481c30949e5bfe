package model

import (
	"encoding/json"
	"strings"
	"time"
)

var looseTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseLooseTime parses the timestamp shapes found in crawler output,
// including an offset followed by a stray "Z". Unparseable input yields the
// zero time.
func ParseLooseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "Z") && strings.Contains(s, "+") {
		s = strings.TrimSuffix(s, "Z")
	}
	for _, layout := range looseTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// looseTime decodes a JSON timestamp leniently.
type looseTime time.Time

func (t *looseTime) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*t = looseTime{}
		return nil
	}
	*t = looseTime(ParseLooseTime(*s))
	return nil
}

// UnmarshalJSON decodes a raw record, tolerating the crawler's timestamp
// formats.
func (r *RawRecord) UnmarshalJSON(b []byte) error {
	type plain RawRecord
	aux := struct {
		*plain
		ScrapedAt looseTime `json:"scraped_at"`
		FirstSeen looseTime `json:"first_seen"`
		UpdatedAt looseTime `json:"updated_at"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.ScrapedAt = time.Time(aux.ScrapedAt)
	r.FirstSeen = time.Time(aux.FirstSeen)
	r.UpdatedAt = time.Time(aux.UpdatedAt)
	return nil
}
