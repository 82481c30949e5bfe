// Package dates normalizes locale decision dates and month partition keys.
package dates

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	// ISOLayout is the canonical decision date layout.
	ISOLayout = "2006-01-02"
	// PartitionLayout is the YYYY-MM partition key layout.
	PartitionLayout = "2006-01"
)

// Accepted day-first layouts, tried in order. Leading zeros are optional.
var localeLayouts = []string{
	"2/1/2006",
	"2-1-2006",
}

var partitionRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Normalize parses a day/month/year date written with "/" or "-" separators.
// It returns the ISO date and its YYYY-MM partition, or ok=false when the
// text is not a valid calendar date in an accepted layout.
func Normalize(raw string) (iso, partition string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}
	for _, layout := range localeLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		return t.Format(ISOLayout), t.Format(PartitionLayout), true
	}
	return "", "", false
}

// PartitionOf returns the month partition of an ISO date, or "" when the
// input is not a valid ISO date.
func PartitionOf(isoDate string) string {
	if len(isoDate) < len(ISOLayout) {
		return ""
	}
	t, err := time.Parse(ISOLayout, isoDate[:len(ISOLayout)])
	if err != nil {
		return ""
	}
	return t.Format(PartitionLayout)
}

// ValidPartition reports whether p is a YYYY-MM key with a real month.
func ValidPartition(p string) bool {
	return partitionRe.MatchString(p)
}

// ClockPartition returns the UTC month of t.
func ClockPartition(t time.Time) string {
	return t.UTC().Format(PartitionLayout)
}

// Window is an inclusive decision-date range.
type Window struct {
	Start string // YYYY-MM-DD
	End   string // YYYY-MM-DD
}

// ParseWindow validates an inclusive start/end pair.
func ParseWindow(start, end string) (Window, error) {
	s, err := time.Parse(ISOLayout, strings.TrimSpace(start))
	if err != nil {
		return Window{}, eris.Wrapf(err, "dates: parse window start %q", start)
	}
	e, err := time.Parse(ISOLayout, strings.TrimSpace(end))
	if err != nil {
		return Window{}, eris.Wrapf(err, "dates: parse window end %q", end)
	}
	if e.Before(s) {
		return Window{}, eris.Errorf("dates: window end %s before start %s", end, start)
	}
	return Window{Start: s.Format(ISOLayout), End: e.Format(ISOLayout)}, nil
}

// StartPartition is the month of the window start.
func (w Window) StartPartition() string { return PartitionOf(w.Start) }

// EndPartition is the month of the window end.
func (w Window) EndPartition() string { return PartitionOf(w.End) }

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool { return w.Start == "" && w.End == "" }

// Contains reports whether a record with the given decision date and stored
// partition falls in the window: decision date between start and end, or
// partition between the start and end months.
func (w Window) Contains(decisionDate, partition string) bool {
	if w.IsZero() {
		return true
	}
	if decisionDate != "" && decisionDate >= w.Start && decisionDate <= w.End {
		return true
	}
	return partition != "" && partition >= w.StartPartition() && partition <= w.EndPartition()
}

func (w Window) String() string { return w.Start + ".." + w.End }

// Span is one calendar month of a window.
type Span struct {
	Start     time.Time
	End       time.Time
	Partition string
}

// Window converts the span to an inclusive date window.
func (s Span) Window() Window {
	return Window{Start: s.Start.Format(ISOLayout), End: s.End.Format(ISOLayout)}
}

// String renders the span the way the crawler consumes it: D/M/YYYY,D/M/YYYY,YYYY-MM.
func (s Span) String() string {
	return fmt.Sprintf("%d/%d/%d,%d/%d/%d,%s",
		s.Start.Day(), int(s.Start.Month()), s.Start.Year(),
		s.End.Day(), int(s.End.Month()), s.End.Year(),
		s.Partition)
}

// MonthSpans returns one span per month from "from" to "to" inclusive, both YYYY-MM.
func MonthSpans(from, to string) ([]Span, error) {
	f, err := time.Parse(PartitionLayout, from)
	if err != nil {
		return nil, eris.Wrapf(err, "dates: parse month %q", from)
	}
	t, err := time.Parse(PartitionLayout, to)
	if err != nil {
		return nil, eris.Wrapf(err, "dates: parse month %q", to)
	}
	if t.Before(f) {
		return nil, eris.Errorf("dates: month %s before %s", to, from)
	}

	var spans []Span
	for m := f; !m.After(t); m = m.AddDate(0, 1, 0) {
		spans = append(spans, Span{
			Start:     m,
			End:       m.AddDate(0, 1, -1),
			Partition: m.Format(PartitionLayout),
		})
	}
	return spans, nil
}

// Spans splits the window into per-month windows clipped to its bounds.
func (w Window) Spans() ([]Window, error) {
	spans, err := MonthSpans(w.StartPartition(), w.EndPartition())
	if err != nil {
		return nil, err
	}
	out := make([]Window, 0, len(spans))
	for _, s := range spans {
		win := s.Window()
		if win.Start < w.Start {
			win.Start = w.Start
		}
		if win.End > w.End {
			win.End = w.End
		}
		out = append(out, win)
	}
	return out, nil
}
