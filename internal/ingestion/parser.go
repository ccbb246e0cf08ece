package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/civicpay/unifee/internal/domain"
)

// RowError collects every problem found on one CSV data row. RowNumber is
// the 1-based position of the row in the file, header excluded.
type RowError struct {
	RowNumber int      `json:"row_number"`
	Errors    []string `json:"errors"`
}

// Detail renders the consolidated error text for one row.
func (e RowError) Detail() string {
	return strings.Join(e.Errors, "; ")
}

// Expected input header (";"-separated):
//
//	id;pa_id_istat;pa_id_catasto;pa_id_fiscal_code;pa_id_cbill;pa_pec_mail;
//	pa_referent_email;pa_referent_name;amount;debtor_id_fiscal_code;
//	debtor_name;debtor_email;payment_notice_number;note
//
// Columns are matched by header name, not position.
func ParseNotices(data []byte) ([]domain.PaymentNotice, []RowError, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = ';'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"id", "amount", "debtor_id_fiscal_code", "debtor_name"} {
		if _, ok := col[required]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var notices []domain.PaymentNotice
	var rowErrs []RowError
	rowNum := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				rowErrs = append(rowErrs, RowError{
					RowNumber: rowNum,
					Errors:    []string{fmt.Sprintf("wrong number of fields, expected %d", len(header))},
				})
				continue
			}
			return nil, nil, fmt.Errorf("row %d: %w", rowNum, err)
		}

		var errs []string
		n := domain.PaymentNotice{
			RowNumber:        rowNum,
			ID:               field(row, "id"),
			PaIDIstat:        field(row, "pa_id_istat"),
			PaIDCatasto:      field(row, "pa_id_catasto"),
			PaIDFiscalCode:   field(row, "pa_id_fiscal_code"),
			PaIDCbill:        field(row, "pa_id_cbill"),
			PaPecEmail:       field(row, "pa_pec_mail"),
			PaReferentEmail:  field(row, "pa_referent_email"),
			PaReferentName:   field(row, "pa_referent_name"),
			DebtorFiscalCode: field(row, "debtor_id_fiscal_code"),
			DebtorName:       field(row, "debtor_name"),
			DebtorEmail:      field(row, "debtor_email"),
			Note:             field(row, "note"),
		}

		if n.ID == "" {
			errs = append(errs, "id is required")
		}
		if n.DebtorName == "" {
			errs = append(errs, "debtor_name is required")
		}

		amountStr := field(row, "amount")
		if amountStr == "" {
			errs = append(errs, "amount is required")
		} else {
			amount, convErr := strconv.ParseInt(amountStr, 10, 64)
			if convErr != nil {
				errs = append(errs, fmt.Sprintf("amount %q is not a valid integer", amountStr))
			} else {
				n.Amount = amount
			}
		}

		if len(errs) > 0 {
			rowErrs = append(rowErrs, RowError{RowNumber: rowNum, Errors: errs})
			continue
		}
		notices = append(notices, n)
	}

	return notices, rowErrs, nil
}
