package ingestion

import (
	"fmt"
	"sort"

	"github.com/civicpay/unifee/internal/domain"
)

// Registry is an in-memory snapshot of the organization registry, indexed
// by each of the three reference kinds a notice may carry.
type Registry struct {
	byFiscalCode map[string][]*domain.Organization
	byIstat      map[string][]*domain.Organization
	byCatasto    map[string][]*domain.Organization
	size         int
}

// NewRegistry indexes the given organizations. Duplicate keys are kept so
// the validator can report ambiguous matches.
func NewRegistry(orgs []domain.Organization) *Registry {
	r := &Registry{
		byFiscalCode: make(map[string][]*domain.Organization),
		byIstat:      make(map[string][]*domain.Organization),
		byCatasto:    make(map[string][]*domain.Organization),
		size:         len(orgs),
	}
	for i := range orgs {
		o := &orgs[i]
		if o.FiscalCode != "" {
			r.byFiscalCode[o.FiscalCode] = append(r.byFiscalCode[o.FiscalCode], o)
		}
		if o.IDIstat != "" {
			r.byIstat[o.IDIstat] = append(r.byIstat[o.IDIstat], o)
		}
		if o.IDCatasto != "" {
			r.byCatasto[o.IDCatasto] = append(r.byCatasto[o.IDCatasto], o)
		}
	}
	return r
}

func (r *Registry) Size() int { return r.size }

// AcceptedRow is a notice that passed validation, together with its
// resolved organization. Skipped marks organizations without an IBAN: the
// row is persisted but never registered remotely.
type AcceptedRow struct {
	Notice  domain.PaymentNotice
	Org     domain.Organization
	Skipped bool
}

// Validator applies the per-row acceptance checks against a registry
// snapshot. All violations of a row are collected, not short-circuited.
type Validator struct {
	debtorFiscalCodeLength int
}

func NewValidator(debtorFiscalCodeLength int) *Validator {
	return &Validator{debtorFiscalCodeLength: debtorFiscalCodeLength}
}

// Validate checks every row and enriches the accepted ones from the
// registry. Acceptance is all-or-nothing at batch granularity: callers
// must not persist anything when rejections are returned.
func (v *Validator) Validate(rows []domain.PaymentNotice, reg *Registry) ([]AcceptedRow, []RowError) {
	idCount := make(map[string]int, len(rows))
	for i := range rows {
		idCount[rows[i].ID]++
	}

	var accepted []AcceptedRow
	var rejections []RowError

	for i := range rows {
		n := rows[i]
		var errs []string

		if n.OrgReferenceCount() != 1 {
			errs = append(errs, "exactly one of pa_id_istat, pa_id_catasto and pa_id_fiscal_code must be valued")
		}
		if n.Amount <= 0 {
			errs = append(errs, "amount must be greater than zero")
		}
		if len(n.DebtorFiscalCode) != v.debtorFiscalCodeLength {
			errs = append(errs, fmt.Sprintf("debtor_id_fiscal_code must be %d characters", v.debtorFiscalCodeLength))
		}
		if idCount[n.ID] > 1 {
			errs = append(errs, fmt.Sprintf("duplicate id %q at row %d", n.ID, n.RowNumber))
		}

		org, matchErrs := v.matchOrganization(&n, reg)
		errs = append(errs, matchErrs...)

		if len(errs) > 0 {
			rejections = append(rejections, RowError{RowNumber: n.RowNumber, Errors: errs})
			continue
		}

		accepted = append(accepted, enrich(n, org))
	}

	sort.Slice(rejections, func(a, b int) bool {
		return rejections[a].RowNumber < rejections[b].RowNumber
	})
	return accepted, rejections
}

// matchOrganization resolves the notice's populated reference kinds
// against the registry. Each populated kind is checked independently:
// zero or multiple matches for a kind is an error.
func (v *Validator) matchOrganization(n *domain.PaymentNotice, reg *Registry) (*domain.Organization, []string) {
	var errs []string
	var org *domain.Organization

	check := func(kind, value string, matches []*domain.Organization) {
		if value == "" {
			return
		}
		switch len(matches) {
		case 0:
			errs = append(errs, fmt.Sprintf("no organization found for %s %q", kind, value))
		case 1:
			org = matches[0]
		default:
			errs = append(errs, fmt.Sprintf("multiple organizations found for %s %q", kind, value))
		}
	}

	check("pa_id_istat", n.PaIDIstat, reg.byIstat[n.PaIDIstat])
	check("pa_id_catasto", n.PaIDCatasto, reg.byCatasto[n.PaIDCatasto])
	check("pa_id_fiscal_code", n.PaIDFiscalCode, reg.byFiscalCode[n.PaIDFiscalCode])

	if len(errs) > 0 {
		return nil, errs
	}
	return org, nil
}

// enrich overwrites the notice's organization fields with the registry
// record and decides whether the row is skipped for a missing IBAN.
func enrich(n domain.PaymentNotice, org *domain.Organization) AcceptedRow {
	n.PaIDFiscalCode = org.FiscalCode
	n.PaIDIstat = org.IDIstat
	n.PaIDCatasto = org.IDCatasto
	n.PaIDCbill = org.IDCbill
	n.PaPecEmail = org.PecEmail
	n.PaReferentEmail = org.ReferentEmail
	n.PaReferentName = org.ReferentName

	return AcceptedRow{
		Notice:  n,
		Org:     *org,
		Skipped: org.Iban == "",
	}
}
