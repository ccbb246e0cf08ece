package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/config"
	"github.com/civicpay/unifee/internal/domain"
	"github.com/civicpay/unifee/internal/iuv"
	"github.com/civicpay/unifee/internal/repository"
)

// IngestResult summarises a successfully ingested batch file.
type IngestResult struct {
	BatchFile    string `json:"batch_file"`
	RowsAccepted int    `json:"rows_accepted"`
	RowsSkipped  int    `json:"rows_skipped"`
	Persisted    int    `json:"persisted"`
	Enqueued     int    `json:"enqueued"`
	AllEnqueued  bool   `json:"all_enqueued"`
}

// ValidationReport is returned instead of an IngestResult when the batch
// is rejected. Nothing is written to the store in that case.
type ValidationReport struct {
	BatchFile   string     `json:"batch_file"`
	TotalRows   int        `json:"total_rows"`
	InvalidRows int        `json:"invalid_rows"`
	ErrorRows   []RowError `json:"error_rows"`
	ErrorCSV    string     `json:"-"`
}

// Service drives a CSV batch through validation, enrichment, IUV
// assignment, partitioned persistence and queueing.
type Service struct {
	orgRepo   *repository.OrganizationRepo
	posRepo   *repository.PositionRepo
	queueRepo *repository.QueueRepo
	generator *iuv.Generator
	validator *Validator
	cfg       *config.Config
	log       logrus.FieldLogger
}

func NewService(
	orgRepo *repository.OrganizationRepo,
	posRepo *repository.PositionRepo,
	queueRepo *repository.QueueRepo,
	generator *iuv.Generator,
	cfg *config.Config,
	log logrus.FieldLogger,
) *Service {
	return &Service{
		orgRepo:   orgRepo,
		posRepo:   posRepo,
		queueRepo: queueRepo,
		generator: generator,
		validator: NewValidator(cfg.DebtorFiscalCodeLength),
		cfg:       cfg,
		log:       log.WithField("component", "ingestion"),
	}
}

// IngestBatch runs the full pipeline for one file. On validation failure
// it returns a report (and writes the error CSV aside) without touching
// the store; acceptance is all-or-nothing per batch.
func (s *Service) IngestBatch(batchFile string, data []byte) (*IngestResult, *ValidationReport, error) {
	orgs, err := s.orgRepo.LoadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("load organizations: %w", err)
	}
	if len(orgs) == 0 {
		return nil, nil, domain.ErrEmptyRegistry
	}
	registry := NewRegistry(orgs)

	notices, parseErrs, err := ParseNotices(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", batchFile, err)
	}

	accepted, rejections := s.validator.Validate(notices, registry)
	rowErrs := mergeRowErrors(parseErrs, rejections)
	totalRows := len(notices) + len(parseErrs)

	if len(rowErrs) > 0 {
		report := &ValidationReport{
			BatchFile:   batchFile,
			TotalRows:   totalRows,
			InvalidRows: len(rowErrs),
			ErrorRows:   rowErrs,
		}
		for _, e := range rowErrs {
			s.log.Errorf("[%s] row %d rejected: %s", batchFile, e.RowNumber, e.Detail())
		}
		if csvOut, renderErr := RenderErrorCSV(data, rowErrs, totalRows); renderErr != nil {
			s.log.Errorf("[%s] render error csv: %v", batchFile, renderErr)
		} else {
			report.ErrorCSV = csvOut
			s.writeErrorCSV(batchFile, csvOut)
		}
		return nil, report, nil
	}

	entities, err := s.buildPositions(batchFile, accepted)
	if err != nil {
		return nil, nil, err
	}

	persisted := s.persist(batchFile, entities)
	enqueued, allEnqueued := s.enqueue(batchFile, persisted)

	skipped := 0
	for i := range persisted {
		if persisted[i].Status == domain.StatusSkipped {
			skipped++
		}
	}

	s.log.Infof("[%s] ingested: accepted=%d skipped=%d persisted=%d enqueued=%d",
		batchFile, len(accepted), skipped, len(persisted), enqueued)

	return &IngestResult{
		BatchFile:    batchFile,
		RowsAccepted: len(accepted),
		RowsSkipped:  skipped,
		Persisted:    len(persisted),
		Enqueued:     enqueued,
		AllEnqueued:  allEnqueued,
	}, nil, nil
}

// buildPositions maps accepted rows to storable entities, assigning an
// IUV/IUPD to every non-skipped row. A generation failure aborts the
// whole batch: better no positions than a partially identified set.
func (s *Service) buildPositions(batchFile string, accepted []AcceptedRow) ([]domain.DebtPosition, error) {
	now := time.Now().UTC()
	entities := make([]domain.DebtPosition, 0, len(accepted))

	for _, row := range accepted {
		n := row.Notice
		e := domain.DebtPosition{
			BatchFile:        batchFile,
			RowID:            n.ID,
			Status:           domain.StatusInserted,
			PaIDIstat:        n.PaIDIstat,
			PaIDCatasto:      n.PaIDCatasto,
			PaIDFiscalCode:   n.PaIDFiscalCode,
			PaIDCbill:        n.PaIDCbill,
			PaPecEmail:       n.PaPecEmail,
			PaReferentEmail:  n.PaReferentEmail,
			PaReferentName:   n.PaReferentName,
			Amount:           n.Amount,
			DebtorFiscalCode: n.DebtorFiscalCode,
			DebtorName:       n.DebtorName,
			DebtorEmail:      n.DebtorEmail,
			Note:             n.Note,
			CompanyName:      row.Org.CompanyName,
			Iban:             row.Org.Iban,
			InsertedAt:       now,
		}

		if row.Skipped {
			e.Status = domain.StatusSkipped
			e.Note = string(domain.StatusSkipped)
		} else {
			generated, err := s.generator.NewUnique(e.PaIDFiscalCode)
			if err != nil {
				return nil, fmt.Errorf("row %s: %w", n.ID, err)
			}
			e.Iuv = generated
			e.Iupd = s.generator.Iupd(generated)
		}

		entities = append(entities, e)
	}
	return entities, nil
}

// persist writes entities in fixed-size partitions, each as one atomic
// group. A failed partition is logged and excluded; the rest of the batch
// still goes through.
func (s *Service) persist(batchFile string, entities []domain.DebtPosition) []domain.DebtPosition {
	persisted := make([]domain.DebtPosition, 0, len(entities))
	for i, part := range partition(entities, s.cfg.PositionBatchSize) {
		if err := s.posRepo.BulkInsert(part); err != nil {
			s.log.Errorf("[%s] persist partition %d (%d rows): %v", batchFile, i, len(part), err)
			continue
		}
		persisted = append(persisted, part...)
	}
	return persisted
}

// enqueue pushes the non-skipped persisted rows to the work queue in
// message chunks with a fresh retry counter.
func (s *Service) enqueue(batchFile string, persisted []domain.DebtPosition) (int, bool) {
	var rows []domain.RetryableRow
	for i := range persisted {
		e := &persisted[i]
		if e.Status == domain.StatusSkipped {
			continue
		}
		rows = append(rows, domain.RetryableRow{
			ID:               e.RowID,
			DebtorName:       e.DebtorName,
			DebtorEmail:      e.DebtorEmail,
			DebtorFiscalCode: e.DebtorFiscalCode,
			Amount:           e.Amount,
			Iuv:              e.Iuv,
			Iupd:             e.Iupd,
			OrgFiscalCode:    e.PaIDFiscalCode,
			CompanyName:      e.CompanyName,
			Iban:             e.Iban,
			Note:             e.Note,
			RetryAction:      domain.StepNone,
		})
	}

	enqueued := 0
	allEnqueued := true
	for i, chunk := range partition(rows, s.cfg.QueueBatchSize) {
		msg := &domain.BatchMessage{
			BatchFile:  batchFile,
			RetryCount: 0,
			Rows:       chunk,
		}
		if err := s.queueRepo.Enqueue(msg, 0, s.cfg.QueueTTL); err != nil {
			s.log.Errorf("[%s] enqueue chunk %d (%d rows): %v", batchFile, i, len(chunk), err)
			allEnqueued = false
			continue
		}
		enqueued += len(chunk)
	}
	return enqueued, allEnqueued
}

func (s *Service) writeErrorCSV(batchFile, content string) {
	if s.cfg.ErrorDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.ErrorDir, 0o755); err != nil {
		s.log.Errorf("[%s] create error dir: %v", batchFile, err)
		return
	}
	path := filepath.Join(s.cfg.ErrorDir, batchFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		s.log.Errorf("[%s] write error csv: %v", batchFile, err)
		return
	}
	s.log.Infof("[%s] error csv written to %s", batchFile, path)
}

// --- helpers ---

func partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	var parts [][]T
	for size < len(items) {
		items, parts = items[size:], append(parts, items[:size:size])
	}
	return append(parts, items)
}

func mergeRowErrors(a, b []RowError) []RowError {
	merged := make([]RowError, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	byRow := make(map[int]int, len(merged))
	var out []RowError
	for _, e := range merged {
		if i, ok := byRow[e.RowNumber]; ok {
			out[i].Errors = append(out[i].Errors, e.Errors...)
			continue
		}
		byRow[e.RowNumber] = len(out)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}
