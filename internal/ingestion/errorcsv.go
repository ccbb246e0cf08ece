package ingestion

import (
	"encoding/csv"
	"fmt"
	"strings"
)

const errorCSVHeader = "id;pa_id_istat;pa_id_catasto;pa_id_fiscal_code;pa_id_cbill;" +
	"pa_pec_mail;pa_referent_email;pa_referent_name;amount;debtor_id_fiscal_code;" +
	"debtor_name;debtor_email;payment_notice_number;note;errors_note"

// RenderErrorCSV reproduces the rejected batch with an errors_note column
// appended to each offending row and a summary footer, so the submitter
// can correct and resubmit the file.
func RenderErrorCSV(data []byte, rowErrs []RowError, totalRows int) (string, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = ';'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("reparse csv: %w", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("empty csv")
	}

	errByRow := make(map[int]RowError, len(rowErrs))
	for _, e := range rowErrs {
		errByRow[e.RowNumber] = e
	}

	var out strings.Builder
	out.WriteString(errorCSVHeader)
	out.WriteString("\n")

	w := csv.NewWriter(&out)
	w.Comma = ';'

	// records[0] is the input header; data rows are 1-based.
	for i, rec := range records[1:] {
		note := ""
		if e, ok := errByRow[i+1]; ok {
			note = "validation error: " + e.Detail()
		}
		if err := w.Write(append(rec, note)); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush: %w", err)
	}

	out.WriteString(fmt.Sprintf("nLinesError/nTotLines:%d/%d\n", len(rowErrs), totalRows))
	return out.String(), nil
}
