package domain

import "time"

type Status string

const (
	StatusInserted Status = "INSERTED"
	StatusCreated  Status = "CREATED"
	StatusSkipped  Status = "SKIPPED"
	StatusError    Status = "ERROR"
)

// DebtPosition is the persisted record of one payer's obligation, keyed by
// (BatchFile, RowID). It is created INSERTED or SKIPPED at ingestion and
// moved to CREATED or ERROR only by the retry orchestrator.
type DebtPosition struct {
	BatchFile string `json:"batch_file"`
	RowID     string `json:"row_id"`
	Status    Status `json:"status"`

	// CSV fields.
	PaIDIstat       string `json:"pa_id_istat"`
	PaIDCatasto     string `json:"pa_id_catasto"`
	PaIDFiscalCode  string `json:"pa_id_fiscal_code"`
	PaIDCbill       string `json:"pa_id_cbill"`
	PaPecEmail      string `json:"pa_pec_mail"`
	PaReferentEmail string `json:"pa_referent_email"`
	PaReferentName  string `json:"pa_referent_name"`

	Amount           int64  `json:"amount"`
	DebtorFiscalCode string `json:"debtor_id_fiscal_code"`
	DebtorName       string `json:"debtor_name"`
	DebtorEmail      string `json:"debtor_email"`
	Note             string `json:"note"`

	// Generated identifiers; empty for SKIPPED positions.
	Iuv  string `json:"iuv"`
	Iupd string `json:"iupd"`

	// Resolved organization fields.
	CompanyName string `json:"company_name"`
	Iban        string `json:"iban"`

	InsertedAt time.Time `json:"inserted_at"`
}
