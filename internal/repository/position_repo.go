package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/civicpay/unifee/internal/domain"
)

type PositionRepo struct {
	db *sql.DB
}

func NewPositionRepo(db *sql.DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// BulkInsert writes one partition of debt positions as a single atomic
// group: either every row of the partition is persisted or none is.
func (r *PositionRepo) BulkInsert(positions []domain.DebtPosition) error {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT INTO debt_positions
		 (batch_file, row_id, status, pa_id_istat, pa_id_catasto, pa_id_fiscal_code,
		  pa_id_cbill, pa_pec_email, pa_referent_email, pa_referent_name, amount,
		  debtor_fiscal_code, debtor_name, debtor_email, note, iuv, iupd,
		  company_name, iban, inserted_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range positions {
		p := &positions[i]
		if _, err := stmt.Exec(
			p.BatchFile, p.RowID, string(p.Status), p.PaIDIstat, p.PaIDCatasto,
			p.PaIDFiscalCode, p.PaIDCbill, p.PaPecEmail, p.PaReferentEmail,
			p.PaReferentName, p.Amount, p.DebtorFiscalCode, p.DebtorName,
			p.DebtorEmail, p.Note, p.Iuv, p.Iupd, p.CompanyName, p.Iban,
			p.InsertedAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert row %s: %w", p.RowID, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateStatus merges a new status into a single persisted entity.
func (r *PositionRepo) UpdateStatus(batchFile, rowID string, status domain.Status) error {
	res, err := r.db.Exec(
		"UPDATE debt_positions SET status = ? WHERE batch_file = ? AND row_id = ?",
		string(status), batchFile, rowID,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return fmt.Errorf("position %s/%s not found", batchFile, rowID)
	}
	return nil
}

func (r *PositionRepo) Get(batchFile, rowID string) (*domain.DebtPosition, error) {
	row := r.db.QueryRow(
		selectPositionSQL+" WHERE batch_file = ? AND row_id = ?", batchFile, rowID)
	return scanPosition(row.Scan)
}

type PositionFilter struct {
	BatchFile string
	Status    string
	Page      int
	Limit     int
}

func (r *PositionRepo) List(f PositionFilter) ([]domain.DebtPosition, int, error) {
	where := ""
	var args []any
	if f.BatchFile != "" {
		where = " WHERE batch_file = ?"
		args = append(args, f.BatchFile)
	}
	if f.Status != "" {
		if where == "" {
			where = " WHERE status = ?"
		} else {
			where += " AND status = ?"
		}
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM debt_positions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.Query(
		selectPositionSQL+where+" ORDER BY batch_file, row_id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var positions []domain.DebtPosition
	for rows.Next() {
		p, err := scanPosition(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, total, rows.Err()
}

// StatusCounts returns the per-status row counts of one batch file.
func (r *PositionRepo) StatusCounts(batchFile string) (map[domain.Status]int, error) {
	rows, err := r.db.Query(
		"SELECT status, COUNT(*) FROM debt_positions WHERE batch_file = ? GROUP BY status",
		batchFile)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

// ListBatchFiles returns every distinct batch file known to the store.
func (r *PositionRepo) ListBatchFiles() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT batch_file FROM debt_positions ORDER BY batch_file")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetCreatedByBatch returns the CREATED rows of one batch file, in row order.
func (r *PositionRepo) GetCreatedByBatch(batchFile string) ([]domain.DebtPosition, error) {
	rows, err := r.db.Query(
		selectPositionSQL+" WHERE batch_file = ? AND status = ? ORDER BY row_id",
		batchFile, string(domain.StatusCreated))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var positions []domain.DebtPosition
	for rows.Next() {
		p, err := scanPosition(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// DashboardStats holds aggregate position statistics.
type DashboardStats struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

func (r *PositionRepo) GetDashboardStats() (*DashboardStats, error) {
	s := &DashboardStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status='INSERTED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='CREATED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='SKIPPED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='ERROR' THEN 1 ELSE 0 END), 0)
		FROM debt_positions
	`).Scan(&s.Total, &s.Inserted, &s.Created, &s.Skipped, &s.Errored)
	return s, err
}

// --- helpers ---

const selectPositionSQL = `SELECT batch_file, row_id, status, pa_id_istat,
	pa_id_catasto, pa_id_fiscal_code, pa_id_cbill, pa_pec_email,
	pa_referent_email, pa_referent_name, amount, debtor_fiscal_code,
	debtor_name, debtor_email, note, iuv, iupd, company_name, iban,
	inserted_at FROM debt_positions`

func scanPosition(scan func(...any) error) (*domain.DebtPosition, error) {
	var p domain.DebtPosition
	var status, insertedAt string

	err := scan(
		&p.BatchFile, &p.RowID, &status, &p.PaIDIstat, &p.PaIDCatasto,
		&p.PaIDFiscalCode, &p.PaIDCbill, &p.PaPecEmail, &p.PaReferentEmail,
		&p.PaReferentName, &p.Amount, &p.DebtorFiscalCode, &p.DebtorName,
		&p.DebtorEmail, &p.Note, &p.Iuv, &p.Iupd, &p.CompanyName, &p.Iban,
		&insertedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.Status(status)
	p.InsertedAt, _ = time.Parse(time.RFC3339, insertedAt)
	return &p, nil
}
