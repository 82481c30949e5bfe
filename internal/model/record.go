package model

import (
	"encoding/json"
	"time"
)

// FileStatus is the outcome of curating a single referenced file.
type FileStatus string

const (
	FileStatusCopied        FileStatus = "copied"
	FileStatusTransformed   FileStatus = "transformed"
	FileStatusMissingSource FileStatus = "missing_source"
	FileStatusError         FileStatus = "error"
)

// AllFileStatuses returns every curated file status in report order.
func AllFileStatuses() []FileStatus {
	return []FileStatus{
		FileStatusCopied,
		FileStatusTransformed,
		FileStatusMissingSource,
		FileStatusError,
	}
}

// Stored reports whether the status means bytes were written to the curated store.
func (s FileStatus) Stored() bool {
	return s == FileStatusCopied || s == FileStatusTransformed
}

// FileRef points at a downloaded file in the landing store.
type FileRef struct {
	URL         string `json:"url,omitempty" bson:"url,omitempty"`
	Path        string `json:"path" bson:"path"`
	ContentType string `json:"content_type,omitempty" bson:"content_type,omitempty"`
	Checksum    string `json:"checksum,omitempty" bson:"checksum,omitempty"`
	Size        int64  `json:"size,omitempty" bson:"size,omitempty"`
}

// UnmarshalJSON accepts the downloader's field names (stored_file_path, mime,
// filesize_bytes) alongside the canonical ones.
func (f *FileRef) UnmarshalJSON(b []byte) error {
	var raw struct {
		URL            string `json:"url"`
		Path           string `json:"path"`
		StoredFilePath string `json:"stored_file_path"`
		ContentType    string `json:"content_type"`
		Mime           string `json:"mime"`
		Checksum       string `json:"checksum"`
		Size           int64  `json:"size"`
		FilesizeBytes  int64  `json:"filesize_bytes"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = FileRef{
		URL:         raw.URL,
		Path:        firstNonEmpty(raw.Path, raw.StoredFilePath),
		ContentType: firstNonEmpty(raw.ContentType, raw.Mime),
		Checksum:    raw.Checksum,
		Size:        raw.Size,
	}
	if f.Size == 0 {
		f.Size = raw.FilesizeBytes
	}
	return nil
}

// RawRecord is one crawled decision as persisted by the crawler.
type RawRecord struct {
	Identifier      string         `json:"identifier" bson:"identifier"`
	Title           string         `json:"title,omitempty" bson:"title,omitempty"`
	Description     string         `json:"description,omitempty" bson:"description,omitempty"`
	DecisionDateRaw string         `json:"decision_date_raw,omitempty" bson:"decision_date_raw,omitempty"`
	DecisionDate    string         `json:"decision_date,omitempty" bson:"decision_date,omitempty"`
	Authority       string         `json:"body,omitempty" bson:"body,omitempty"`
	AuthorityID     string         `json:"body_id,omitempty" bson:"body_id,omitempty"`
	SourceURL       string         `json:"source_url,omitempty" bson:"source_url,omitempty"`
	DetailURL       string         `json:"detail_url,omitempty" bson:"detail_url,omitempty"`
	StoredFiles     []FileRef      `json:"stored_files,omitempty" bson:"stored_files,omitempty"`
	Files           []FileRef      `json:"files,omitempty" bson:"files,omitempty"`
	ContentTypes    []string       `json:"content_types,omitempty" bson:"content_types,omitempty"`
	PartitionDate   string         `json:"partition_date,omitempty" bson:"partition_date,omitempty"`
	ScrapedAt       time.Time      `json:"scraped_at,omitzero" bson:"scraped_at,omitempty"`
	FirstSeen       time.Time      `json:"first_seen,omitzero" bson:"first_seen,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at,omitzero" bson:"updated_at,omitempty"`
	Extra           map[string]any `json:"extra,omitempty" bson:"extra,omitempty"`
}

// DetailKey returns the detail URL half of the record key, falling back to
// the search-card source URL.
func (r RawRecord) DetailKey() string {
	return firstNonEmpty(r.DetailURL, r.SourceURL)
}

// FileRefs returns the files to curate: stored_files when any carry a path,
// otherwise the downloader's files list. Duplicate paths are dropped in order.
func (r RawRecord) FileRefs() []FileRef {
	refs := withPath(r.StoredFiles)
	if len(refs) == 0 {
		refs = withPath(r.Files)
	}

	seen := NewOrderedSet[string]()
	out := make([]FileRef, 0, len(refs))
	for _, f := range refs {
		if seen.Add(f.Path) {
			out = append(out, f)
		}
	}
	return out
}

func withPath(in []FileRef) []FileRef {
	var out []FileRef
	for _, f := range in {
		if f.Path != "" {
			out = append(out, f)
		}
	}
	return out
}

// CuratedFile is the per-file result of a curation pass.
type CuratedFile struct {
	Status          FileStatus `json:"status" bson:"status"`
	Path            string     `json:"path,omitempty" bson:"path,omitempty"`
	Hash            string     `json:"hash,omitempty" bson:"hash,omitempty"`
	ContentTypeHint string     `json:"content_type_hint,omitempty" bson:"content_type_hint,omitempty"`
	Ext             string     `json:"ext,omitempty" bson:"ext,omitempty"`
	Source          string     `json:"source,omitempty" bson:"source,omitempty"`
	SourceHash      string     `json:"source_hash,omitempty" bson:"source_hash,omitempty"`
	Error           string     `json:"error,omitempty" bson:"error,omitempty"`
}

// CuratedRecord is the curated metadata for one (identifier, detail URL) pair.
type CuratedRecord struct {
	Identifier    string        `json:"identifier" bson:"identifier"`
	DetailURL     string        `json:"detail_url" bson:"detail_url"`
	Authority     string        `json:"body" bson:"body"`
	AuthorityID   string        `json:"body_id,omitempty" bson:"body_id,omitempty"`
	DecisionDate  string        `json:"decision_date,omitempty" bson:"decision_date,omitempty"`
	PartitionDate string        `json:"partition_date" bson:"partition_date"`
	Files         []CuratedFile `json:"new_files" bson:"new_files"`
	CuratedAt     time.Time     `json:"curated_at" bson:"curated_at"`
}

// OwnedPaths returns every curated path recorded for this record, in file
// order. Failed entries keep the name they claimed so later runs reuse it.
func (c *CuratedRecord) OwnedPaths() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, f := range c.Files {
		if f.Path != "" {
			out = append(out, f.Path)
		}
	}
	return out
}

// StoredPaths returns the curated paths holding written bytes, in file order.
func (c *CuratedRecord) StoredPaths() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, f := range c.Files {
		if f.Status.Stored() && f.Path != "" {
			out = append(out, f.Path)
		}
	}
	return out
}

// CountStatus returns how many files ended with the given status.
func (c CuratedRecord) CountStatus(s FileStatus) int {
	n := 0
	for _, f := range c.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
