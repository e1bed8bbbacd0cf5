package staging

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/opsportal/internal/models"
)

const jobsSheet = "JobEntries"

var jobColumns = []string{"Thang", "Ma", "MaKH", "SoTien", "TrangThai", "NoiDung1", "NoiDung2"}

// WriteJobsXLSX writes entries to a single-sheet workbook with the register's column
// names as header. Amounts that are plain integers are written as numbers.
func WriteJobsXLSX(w io.Writer, entries []models.JobEntry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header := make([]any, len(jobColumns))
	for i, c := range jobColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(jobsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.Thang, e.Ma, amountCell(e.MaKH), amountCell(e.SoTien), e.TrangThai, e.NoiDung1, e.NoiDung2}
		if err := f.SetSheetRow(jobsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func amountCell(a models.Amount) any {
	if n, err := strconv.ParseInt(string(a), 10, 64); err == nil {
		return n
	}
	return string(a)
}

// ReadJobsXLSX reads rows from the first sheet of a workbook. Columns are matched by
// header name, case-insensitively; rows without a job code are skipped.
func ReadJobsXLSX(r io.Reader) ([]models.JobEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("no worksheet found")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("worksheet is empty")
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["ma"]; !ok {
		return nil, fmt.Errorf("worksheet has no Ma column")
	}
	cell := func(row []string, name string) string {
		i, ok := idx[strings.ToLower(name)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []models.JobEntry
	for _, row := range rows[1:] {
		e := models.JobEntry{
			Thang:     cell(row, "Thang"),
			Ma:        cell(row, "Ma"),
			MaKH:      models.Amount(cell(row, "MaKH")),
			SoTien:    models.Amount(cell(row, "SoTien")),
			TrangThai: cell(row, "TrangThai"),
			NoiDung1:  cell(row, "NoiDung1"),
			NoiDung2:  cell(row, "NoiDung2"),
		}
		if e.Ma == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
