package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// DefaultReportFile is the report name used when none is given.
const DefaultReportFile = "batch_translation_report.csv"

// utf8BOM lets spreadsheet applications detect the encoding.
const utf8BOM = "\ufeff"

var reportHeader = []string{"file", "total", "translated", "skipped", "failed", "output", "status", "error"}

// WriteCSV writes one row per file and a final TOTAL row.
func WriteCSV(w io.Writer, r Report) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, res := range r.Results {
		status, errText := "success", ""
		if !res.OK() {
			status, errText = "failed", res.Err.Error()
		}
		row := append(statsColumns(res.Input, res.Stats.Total, res.Stats.Translated, res.Stats.Skipped, res.Stats.Failed),
			res.Output, status, errText)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	t := r.Totals
	total := append(statsColumns("TOTAL", t.Total, t.Translated, t.Skipped, t.Failed),
		"", fmt.Sprintf("%d/%d succeeded", r.Succeeded(), len(r.Results)), "")
	if err := cw.Write(total); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func statsColumns(name string, total, translated, skipped, failed int) []string {
	return []string{
		name,
		strconv.Itoa(total),
		strconv.Itoa(translated),
		strconv.Itoa(skipped),
		strconv.Itoa(failed),
	}
}

// WriteCSVFile writes the report to path.
func WriteCSVFile(path string, r Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := WriteCSV(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return f.Close()
}
