package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRef_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want FileRef
	}{
		{
			name: "canonical fields",
			in:   `{"url":"https://x/a.pdf","path":"2023-06/wrc/a.pdf","content_type":"application/pdf","checksum":"abc","size":10}`,
			want: FileRef{URL: "https://x/a.pdf", Path: "2023-06/wrc/a.pdf", ContentType: "application/pdf", Checksum: "abc", Size: 10},
		},
		{
			name: "downloader aliases",
			in:   `{"url":"https://x/a.html","stored_file_path":"2023-06/wrc/a.html","mime":"text/html","filesize_bytes":42}`,
			want: FileRef{URL: "https://x/a.html", Path: "2023-06/wrc/a.html", ContentType: "text/html", Size: 42},
		},
		{
			name: "canonical wins over alias",
			in:   `{"path":"p1","stored_file_path":"p2","content_type":"text/html","mime":"application/pdf"}`,
			want: FileRef{Path: "p1", ContentType: "text/html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got FileRef
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRawRecord_FileRefs(t *testing.T) {
	t.Parallel()

	t.Run("prefers stored files", func(t *testing.T) {
		t.Parallel()
		r := RawRecord{
			StoredFiles: []FileRef{{Path: "a.pdf"}, {Path: "b.html"}},
			Files:       []FileRef{{Path: "c.pdf"}},
		}
		assert.Equal(t, []FileRef{{Path: "a.pdf"}, {Path: "b.html"}}, r.FileRefs())
	})

	t.Run("falls back to files when stored files lack paths", func(t *testing.T) {
		t.Parallel()
		r := RawRecord{
			StoredFiles: []FileRef{{URL: "https://x/a.pdf"}},
			Files:       []FileRef{{Path: "c.pdf"}},
		}
		assert.Equal(t, []FileRef{{Path: "c.pdf"}}, r.FileRefs())
	})

	t.Run("drops duplicate paths in order", func(t *testing.T) {
		t.Parallel()
		r := RawRecord{StoredFiles: []FileRef{
			{Path: "b.html", URL: "first"},
			{Path: "a.pdf"},
			{Path: "b.html", URL: "second"},
		}}
		got := r.FileRefs()
		require.Len(t, got, 2)
		assert.Equal(t, "first", got[0].URL)
		assert.Equal(t, "a.pdf", got[1].Path)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, RawRecord{}.FileRefs())
	})
}

func TestRawRecord_DetailKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "d", RawRecord{DetailURL: "d", SourceURL: "s"}.DetailKey())
	assert.Equal(t, "s", RawRecord{SourceURL: "s"}.DetailKey())
	assert.Empty(t, RawRecord{}.DetailKey())
}

func TestCuratedRecord_StoredPaths(t *testing.T) {
	t.Parallel()

	var nilRec *CuratedRecord
	assert.Nil(t, nilRec.StoredPaths())

	rec := &CuratedRecord{Files: []CuratedFile{
		{Status: FileStatusTransformed, Path: "p/a.html"},
		{Status: FileStatusMissingSource, Source: "gone.pdf"},
		{Status: FileStatusCopied, Path: "p/a.pdf"},
		{Status: FileStatusError, Error: "boom"},
	}}
	assert.Equal(t, []string{"p/a.html", "p/a.pdf"}, rec.StoredPaths())
	assert.Equal(t, 1, rec.CountStatus(FileStatusError))
	assert.Equal(t, 0, rec.CountStatus("bogus"))
}

func TestCuratedRecord_OwnedPaths(t *testing.T) {
	t.Parallel()

	var nilRec *CuratedRecord
	assert.Nil(t, nilRec.OwnedPaths())

	rec := &CuratedRecord{Files: []CuratedFile{
		{Status: FileStatusCopied, Path: "p/a.pdf"},
		{Status: FileStatusError, Path: "p/a-2.pdf", Error: "read failed"},
		{Status: FileStatusMissingSource, Source: "gone.pdf"},
		{Status: FileStatusError, Error: "is a directory"},
	}}
	assert.Equal(t, []string{"p/a.pdf", "p/a-2.pdf"}, rec.OwnedPaths())
	assert.Equal(t, []string{"p/a.pdf"}, rec.StoredPaths())
}

func TestFileStatus_Stored(t *testing.T) {
	t.Parallel()
	assert.True(t, FileStatusCopied.Stored())
	assert.True(t, FileStatusTransformed.Stored())
	assert.False(t, FileStatusMissingSource.Stored())
	assert.False(t, FileStatusError.Stored())
	assert.Len(t, AllFileStatuses(), 4)
}

func TestRawRecord_UnmarshalJSON_LooseTimes(t *testing.T) {
	t.Parallel()

	in := `{"identifier":"ADJ-00012345","scraped_at":"2024-05-01T10:00:00+00:00Z","first_seen":null,"updated_at":"2024-05-02T08:30:00Z"}`
	var r RawRecord
	require.NoError(t, json.Unmarshal([]byte(in), &r))

	assert.Equal(t, "ADJ-00012345", r.Identifier)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), r.ScrapedAt)
	assert.True(t, r.FirstSeen.IsZero())
	assert.Equal(t, time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC), r.UpdatedAt)
}

func TestParseLooseTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), ParseLooseTime("2023-06-15"))
	assert.Equal(t, time.Date(2023, 6, 15, 12, 1, 2, 0, time.UTC), ParseLooseTime(" 2023-06-15 12:01:02 "))
	assert.Equal(t, time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC), ParseLooseTime("2023-06-15T12:00:00+02:00"))
	assert.True(t, ParseLooseTime("yesterday").IsZero())
}
