package domain

// PaymentNotice is one data line of an input CSV batch, before validation.
// Exactly one of the three organization reference fields (ISTAT code,
// cadastral code, fiscal code) may be populated.
type PaymentNotice struct {
	RowNumber int    `json:"row_number"` // 1-based data row position in the file
	ID        string `json:"id"`

	PaIDIstat       string `json:"pa_id_istat"`
	PaIDCatasto     string `json:"pa_id_catasto"`
	PaIDFiscalCode  string `json:"pa_id_fiscal_code"`
	PaIDCbill       string `json:"pa_id_cbill"`
	PaPecEmail      string `json:"pa_pec_mail"`
	PaReferentEmail string `json:"pa_referent_email"`
	PaReferentName  string `json:"pa_referent_name"`

	Amount           int64  `json:"amount"` // currency minor units
	DebtorFiscalCode string `json:"debtor_id_fiscal_code"`
	DebtorName       string `json:"debtor_name"`
	DebtorEmail      string `json:"debtor_email"`
	Note             string `json:"note"`
}

// OrgReferenceCount returns how many of the three organization reference
// fields are populated.
func (n *PaymentNotice) OrgReferenceCount() int {
	count := 0
	if n.PaIDIstat != "" {
		count++
	}
	if n.PaIDCatasto != "" {
		count++
	}
	if n.PaIDFiscalCode != "" {
		count++
	}
	return count
}
