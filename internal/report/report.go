// Package report exports curated records to an xlsx workbook for review.
package report

import (
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/decision-curator/internal/model"
)

// Sheet names in the exported workbook.
const (
	RecordsSheet = "records"
	SummarySheet = "summary"
)

// RecordColumns is the header of the records sheet.
var RecordColumns = []string{
	"identifier", "detail_url", "authority", "decision_date", "partition",
	"status", "path", "hash", "ext", "source", "error",
}

// Row is one curated file in the records sheet. Records without files get a
// single row with empty file columns.
type Row struct {
	Identifier   string
	DetailURL    string
	Authority    string
	DecisionDate string
	Partition    string
	Status       string
	Path         string
	Hash         string
	Ext          string
	Source       string
	Error        string
}

func (r Row) cells() []string {
	return []string{
		r.Identifier, r.DetailURL, r.Authority, r.DecisionDate, r.Partition,
		r.Status, r.Path, r.Hash, r.Ext, r.Source, r.Error,
	}
}

func rowFromCells(c []string) Row {
	get := func(i int) string {
		if i < len(c) {
			return c[i]
		}
		return ""
	}
	return Row{
		Identifier: get(0), DetailURL: get(1), Authority: get(2), DecisionDate: get(3), Partition: get(4),
		Status: get(5), Path: get(6), Hash: get(7), Ext: get(8), Source: get(9), Error: get(10),
	}
}

// Rows flattens records into sheet rows in record then file order.
func Rows(recs []model.CuratedRecord) []Row {
	var out []Row
	for _, rec := range recs {
		base := Row{
			Identifier:   rec.Identifier,
			DetailURL:    rec.DetailURL,
			Authority:    rec.Authority,
			DecisionDate: rec.DecisionDate,
			Partition:    rec.PartitionDate,
		}
		if len(rec.Files) == 0 {
			out = append(out, base)
			continue
		}
		for _, f := range rec.Files {
			r := base
			r.Status = string(f.Status)
			r.Path = f.Path
			r.Hash = f.Hash
			r.Ext = f.Ext
			r.Source = f.Source
			r.Error = f.Error
			out = append(out, r)
		}
	}
	return out
}

// Summary counts files per status across the exported records.
type Summary struct {
	Records  int
	ByStatus map[model.FileStatus]int
}

// Summarize counts recs.
func Summarize(recs []model.CuratedRecord) Summary {
	s := Summary{Records: len(recs), ByStatus: make(map[model.FileStatus]int)}
	for _, rec := range recs {
		for _, status := range model.AllFileStatuses() {
			s.ByStatus[status] += rec.CountStatus(status)
		}
	}
	return s
}

// WriteXLSX writes recs to a workbook at path with a records sheet and a
// summary sheet.
func WriteXLSX(path string, recs []model.CuratedRecord) (Summary, error) {
	f := xlsx.NewFile()

	records, err := f.AddSheet(RecordsSheet)
	if err != nil {
		return Summary{}, eris.Wrap(err, "report: add records sheet")
	}
	header := records.AddRow()
	for _, col := range RecordColumns {
		cell := header.AddCell()
		cell.SetString(col)
		cell.GetStyle().Font.Bold = true
	}
	for _, r := range Rows(recs) {
		row := records.AddRow()
		for _, v := range r.cells() {
			row.AddCell().SetString(v)
		}
	}

	summary := Summarize(recs)
	sheet, err := f.AddSheet(SummarySheet)
	if err != nil {
		return Summary{}, eris.Wrap(err, "report: add summary sheet")
	}
	addPair(sheet, "status", "count")
	addPair(sheet, "records", strconv.Itoa(summary.Records))
	for _, status := range model.AllFileStatuses() {
		addPair(sheet, string(status), strconv.Itoa(summary.ByStatus[status]))
	}

	if err := f.Save(path); err != nil {
		return Summary{}, eris.Wrapf(err, "report: save %s", path)
	}
	return summary, nil
}

func addPair(sheet *xlsx.Sheet, k, v string) {
	row := sheet.AddRow()
	row.AddCell().SetString(k)
	row.AddCell().SetString(v)
}

// SheetOptions selects a sheet when reading a workbook.
type SheetOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of header rows to skip
}

// ReadXLSX reads a sheet and returns all rows as string slices.
func ReadXLSX(path string, opts SheetOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// ReadRows reads the records sheet of an exported workbook.
func ReadRows(path string) ([]Row, error) {
	raw, err := ReadXLSX(path, SheetOptions{SheetName: RecordsSheet})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || !slices.Equal(trimTrailing(raw[0]), RecordColumns) {
		return nil, eris.Errorf("report: %s is not a records export", path)
	}
	out := make([]Row, 0, len(raw)-1)
	for _, c := range raw[1:] {
		out = append(out, rowFromCells(c))
	}
	return out, nil
}

// Verify checks that the workbook at path holds exactly the rows recs would export.
func Verify(path string, recs []model.CuratedRecord) error {
	got, err := ReadRows(path)
	if err != nil {
		return err
	}
	want := Rows(recs)
	if len(got) != len(want) {
		return eris.Errorf("report: %s has %d rows, want %d", path, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return eris.Errorf("report: row %d differs: got %s/%s, want %s/%s",
				i+2, got[i].Identifier, got[i].Path, want[i].Identifier, want[i].Path)
		}
	}
	return nil
}

func getSheet(f *xlsx.File, opts SheetOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("report: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("report: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func trimTrailing(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
