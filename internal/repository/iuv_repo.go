package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/civicpay/unifee/internal/domain"
)

// IuvRepo is the uniqueness store for generated payment identifiers. The
// table's primary key makes Reserve an atomic insert-if-absent.
type IuvRepo struct {
	db *sql.DB
}

func NewIuvRepo(db *sql.DB) *IuvRepo {
	return &IuvRepo{db: db}
}

// Reserve claims an IUV for an organization. A pre-existing pair means a
// collision and yields domain.ErrIuvConflict.
func (r *IuvRepo) Reserve(orgFiscalCode, iuv string) error {
	res, err := r.db.Exec(
		"INSERT OR IGNORE INTO iuv_registry (org_fiscal_code, iuv, reserved_at) VALUES (?,?,?)",
		orgFiscalCode, iuv, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("reserve iuv: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return domain.ErrIuvConflict
	}
	return nil
}
