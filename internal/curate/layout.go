package curate

import (
	"path"
	"strings"
	"time"

	"github.com/sells-group/decision-curator/internal/dates"
	"github.com/sells-group/decision-curator/internal/ident"
	"github.com/sells-group/decision-curator/internal/model"
)

// DefaultAuthoritySlug is used when a record names no issuing body.
const DefaultAuthoritySlug = "all"

// AuthoritySlug derives the folder name for an issuing body from its label,
// falling back to its id.
func AuthoritySlug(label, id string) string {
	val := strings.TrimSpace(label)
	if val == "" {
		val = strings.TrimSpace(id)
	}
	if s := strings.ToLower(ident.Slug(val)); s != "" {
		return s
	}
	return DefaultAuthoritySlug
}

// DecisionDate returns the record's ISO decision date, normalizing the raw
// text when the crawler did not.
func DecisionDate(rec model.RawRecord) string {
	if dates.PartitionOf(rec.DecisionDate) != "" {
		return rec.DecisionDate
	}
	if iso, _, ok := dates.Normalize(rec.DecisionDateRaw); ok {
		return iso
	}
	return ""
}

// Partition picks the curated partition: the decision month, then the stored
// partition, then the window start month, then the clock month.
func Partition(rec model.RawRecord, w dates.Window, now time.Time) string {
	if p := dates.PartitionOf(DecisionDate(rec)); p != "" {
		return p
	}
	if dates.ValidPartition(rec.PartitionDate) {
		return rec.PartitionDate
	}
	if p := w.StartPartition(); p != "" {
		return p
	}
	return dates.ClockPartition(now)
}

// Layout is where one record's curated files live.
type Layout struct {
	Identifier string
	Partition  string
	Authority  string // slug
}

// LayoutFor resolves the identifier, partition and authority slug of rec.
func LayoutFor(rec model.RawRecord, w dates.Window, now time.Time) Layout {
	return Layout{
		Identifier: ident.Normalize(rec.Identifier, rec.DetailKey(), rec.Title),
		Partition:  Partition(rec, w, now),
		Authority:  AuthoritySlug(rec.Authority, rec.AuthorityID),
	}
}

// Dir is the slash-separated directory relative to the curated root.
func (l Layout) Dir() string {
	return path.Join(l.Partition, l.Authority, l.Identifier)
}
