package domain

// Organization is a registry entry for a fee-collecting entity. FiscalCode
// is the primary key; an organization without an IBAN cannot receive
// payments, so its notices are accepted but skipped.
type Organization struct {
	FiscalCode    string `json:"fiscal_code"`
	IDIstat       string `json:"id_istat"`
	IDCatasto     string `json:"id_catasto"`
	IDCbill       string `json:"id_cbill"`
	PecEmail      string `json:"pec_email"`
	ReferentEmail string `json:"referent_email"`
	ReferentName  string `json:"referent_name"`
	CompanyName   string `json:"company_name"`
	Iban          string `json:"iban"`
}
