package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/decision-curator/internal/model"
)

func sampleRecords() []model.CuratedRecord {
	return []model.CuratedRecord{
		{
			Identifier:    "ADJ-00012345",
			DetailURL:     "https://example.org/adj-00012345",
			Authority:     "Workplace Relations Commission",
			DecisionDate:  "2023-06-12",
			PartitionDate: "2023-06",
			Files: []model.CuratedFile{
				{Status: model.FileStatusTransformed, Path: "2023-06/workplace-relations-commission/ADJ-00012345/ADJ-00012345.html", Hash: "abc", Ext: ".html", Source: "a.html"},
				{Status: model.FileStatusMissingSource, Source: "gone.pdf"},
			},
		},
		{
			Identifier:    "DWT2415",
			DetailURL:     "https://example.org/dwt2415",
			PartitionDate: "2024-02",
			Files:         []model.CuratedFile{},
		},
	}
}

func TestRows(t *testing.T) {
	t.Parallel()

	rows := Rows(sampleRecords())
	require.Len(t, rows, 3)
	assert.Equal(t, "transformed", rows[0].Status)
	assert.Equal(t, "ADJ-00012345", rows[1].Identifier)
	assert.Equal(t, "missing_source", rows[1].Status)
	assert.Empty(t, rows[1].Path)
	assert.Equal(t, Row{Identifier: "DWT2415", DetailURL: "https://example.org/dwt2415", Partition: "2024-02"}, rows[2])
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	t.Parallel()

	recs := sampleRecords()
	path := filepath.Join(t.TempDir(), "report.xlsx")

	summary, err := WriteXLSX(path, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.ByStatus[model.FileStatusTransformed])
	assert.Equal(t, 1, summary.ByStatus[model.FileStatusMissingSource])
	assert.Zero(t, summary.ByStatus[model.FileStatusError])

	rows, err := ReadRows(path)
	require.NoError(t, err)
	assert.Equal(t, Rows(recs), rows)
	assert.NoError(t, Verify(path, recs))

	sum, err := ReadXLSX(path, SheetOptions{SheetName: SummarySheet, SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, sum, 5)
	assert.Equal(t, []string{"records", "2"}, sum[0])
	assert.Equal(t, []string{"copied", "0"}, sum[1])
	assert.Equal(t, []string{"transformed", "1"}, sum[2])
}

func TestVerify_Mismatch(t *testing.T) {
	t.Parallel()

	recs := sampleRecords()
	path := filepath.Join(t.TempDir(), "report.xlsx")
	_, err := WriteXLSX(path, recs)
	require.NoError(t, err)

	err = Verify(path, recs[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 3 rows, want 2")

	changed := sampleRecords()
	changed[0].Files[0].Path = "elsewhere.html"
	err = Verify(path, changed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2 differs")
}

func TestReadRows_NotAnExport(t *testing.T) {
	t.Parallel()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(RecordsSheet)
	require.NoError(t, err)
	sheet.AddRow().AddCell().SetString("something else")
	path := filepath.Join(t.TempDir(), "other.xlsx")
	require.NoError(t, f.Save(path))

	_, err = ReadRows(path)
	assert.Error(t, err)
}

func TestReadXLSX_SheetErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.xlsx")
	_, err := WriteXLSX(path, nil)
	require.NoError(t, err)

	_, err = ReadXLSX(path, SheetOptions{SheetName: "nope"})
	assert.Error(t, err)
	_, err = ReadXLSX(path, SheetOptions{SheetIndex: 5})
	assert.Error(t, err)

	rows, err := ReadXLSX(path, SheetOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), SheetOptions{})
	assert.Error(t, err)
}
