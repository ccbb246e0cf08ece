package domain

// RetryStep marks which remote registration phase a row resumes from. It
// only advances NONE -> CREATE -> PUBLISH within one attempt, or
// short-circuits to ERROR.
type RetryStep string

const (
	StepNone    RetryStep = "NONE"
	StepCreate  RetryStep = "CREATE"
	StepPublish RetryStep = "PUBLISH"
	StepError   RetryStep = "ERROR"
)

// RetryableRow is the trimmed queue payload for one debt position awaiting
// remote registration.
type RetryableRow struct {
	ID               string    `json:"id"`
	DebtorName       string    `json:"debtor_name"`
	DebtorEmail      string    `json:"debtor_email"`
	DebtorFiscalCode string    `json:"debtor_id_fiscal_code"`
	Amount           int64     `json:"amount"`
	Iuv              string    `json:"iuv"`
	Iupd             string    `json:"iupd"`
	OrgFiscalCode    string    `json:"pa_id_fiscal_code"`
	CompanyName      string    `json:"company_name"`
	Iban             string    `json:"iban"`
	Note             string    `json:"note"`
	RetryAction      RetryStep `json:"retry_action"`
}

// BatchMessage is one work-queue message: a retry batch of rows belonging
// to a single batch file. RetryCount is the number of attempts so far.
type BatchMessage struct {
	BatchFile  string         `json:"batch_file"`
	RetryCount int            `json:"retry_count"`
	Rows       []RetryableRow `json:"rows"`
}
