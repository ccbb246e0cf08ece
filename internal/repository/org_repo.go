package repository

import (
	"database/sql"
	"fmt"

	"github.com/civicpay/unifee/internal/domain"
)

type OrganizationRepo struct {
	db *sql.DB
}

func NewOrganizationRepo(db *sql.DB) *OrganizationRepo {
	return &OrganizationRepo{db: db}
}

func (r *OrganizationRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM organizations").Scan(&count)
	return count, err
}

// LoadAll returns the full registry snapshot. The validator treats an
// empty snapshot as fatal for the run, so callers must check the length.
func (r *OrganizationRepo) LoadAll() ([]domain.Organization, error) {
	rows, err := r.db.Query(
		`SELECT fiscal_code, id_istat, id_catasto, id_cbill, pec_email,
		        referent_email, referent_name, company_name, iban
		 FROM organizations ORDER BY fiscal_code`)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	defer rows.Close()

	var orgs []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.FiscalCode, &o.IDIstat, &o.IDCatasto, &o.IDCbill,
			&o.PecEmail, &o.ReferentEmail, &o.ReferentName, &o.CompanyName, &o.Iban); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (r *OrganizationRepo) BulkInsert(orgs []domain.Organization) (int, error) {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO organizations
		 (fiscal_code, id_istat, id_catasto, id_cbill, pec_email,
		  referent_email, referent_name, company_name, iban)
		 VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range orgs {
		o := &orgs[i]
		res, err := stmt.Exec(o.FiscalCode, o.IDIstat, o.IDCatasto, o.IDCbill,
			o.PecEmail, o.ReferentEmail, o.ReferentName, o.CompanyName, o.Iban)
		if err != nil {
			return inserted, fmt.Errorf("insert organization %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}
