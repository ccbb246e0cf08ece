package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/domain"
	"github.com/civicpay/unifee/internal/repository"
)

const outputHeader = "id;status;pa_id_istat;pa_id_catasto;pa_id_fiscal_code;pa_id_cbill;" +
	"pa_pec_email;pa_referent_email;amount;debtor_id_fiscal_code;debtor_name;" +
	"debtor_email;payment_notice_number;note"

// Service writes the output CSV of completed batches: a batch qualifies
// once none of its rows is still INSERTED and none ended in ERROR.
type Service struct {
	posRepo   *repository.PositionRepo
	outputDir string
	log       logrus.FieldLogger
}

func NewService(posRepo *repository.PositionRepo, outputDir string, log logrus.FieldLogger) *Service {
	return &Service{
		posRepo:   posRepo,
		outputDir: outputDir,
		log:       log.WithField("component", "export"),
	}
}

// RenderBatch produces the output CSV for one batch file. complete is
// false while the batch still has INSERTED rows or any ERROR row.
func (s *Service) RenderBatch(batchFile string) (content string, complete bool, err error) {
	counts, err := s.posRepo.StatusCounts(batchFile)
	if err != nil {
		return "", false, fmt.Errorf("status counts: %w", err)
	}
	if len(counts) == 0 {
		return "", false, fmt.Errorf("unknown batch file %q", batchFile)
	}
	if counts[domain.StatusInserted] > 0 || counts[domain.StatusError] > 0 {
		return "", false, nil
	}

	positions, err := s.posRepo.GetCreatedByBatch(batchFile)
	if err != nil {
		return "", false, fmt.Errorf("load created rows: %w", err)
	}

	var b strings.Builder
	b.WriteString(outputHeader)
	b.WriteString("\n")
	for i := range positions {
		p := &positions[i]
		fields := []string{
			p.RowID, string(p.Status), p.PaIDIstat, p.PaIDCatasto,
			p.PaIDFiscalCode, p.PaIDCbill, p.PaPecEmail, p.PaReferentEmail,
			strconv.FormatInt(p.Amount, 10), p.DebtorFiscalCode, p.DebtorName,
			p.DebtorEmail, p.Iuv, p.Note,
		}
		b.WriteString(strings.Join(fields, ";"))
		b.WriteString("\n")
	}
	return b.String(), true, nil
}

// ExportCompleted scans all known batches and writes the output file for
// every completed one not exported yet. It returns how many files were
// written.
func (s *Service) ExportCompleted() (int, error) {
	files, err := s.posRepo.ListBatchFiles()
	if err != nil {
		return 0, fmt.Errorf("list batch files: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	exported := 0
	for _, file := range files {
		path := filepath.Join(s.outputDir, file)
		if _, err := os.Stat(path); err == nil {
			continue // already exported
		}

		content, complete, err := s.RenderBatch(file)
		if err != nil {
			s.log.Errorf("[%s] render: %v", file, err)
			continue
		}
		if !complete {
			continue
		}

		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			s.log.Errorf("[%s] write output: %v", file, err)
			continue
		}
		s.log.Infof("[%s] output csv written to %s", file, path)
		exported++
	}
	return exported, nil
}

// Run exports completed batches on a fixed interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExportCompleted(); err != nil {
				s.log.Errorf("export run: %v", err)
			}
		}
	}
}
