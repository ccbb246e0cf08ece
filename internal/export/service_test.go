package export

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpay/unifee/internal/domain"
	"github.com/civicpay/unifee/internal/repository"
)

func newTestService(t *testing.T) (*Service, *repository.PositionRepo, string) {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	posRepo := repository.NewPositionRepo(db)
	outputDir := filepath.Join(t.TempDir(), "output")
	return NewService(posRepo, outputDir, log), posRepo, outputDir
}

func position(batchFile, rowID string, status domain.Status) domain.DebtPosition {
	return domain.DebtPosition{
		BatchFile:        batchFile,
		RowID:            rowID,
		Status:           status,
		PaIDFiscalCode:   "80014930329",
		Amount:           15000,
		DebtorFiscalCode: "01234567890",
		DebtorName:       "Rossi Impianti Srl",
		Iuv:              "347000000000000012",
		InsertedAt:       time.Now().UTC(),
	}
}

func TestRenderBatchIncompleteWhileRowsPending(t *testing.T) {
	svc, posRepo, _ := newTestService(t)
	require.NoError(t, posRepo.BulkInsert([]domain.DebtPosition{
		position("a.csv", "1", domain.StatusCreated),
		position("a.csv", "2", domain.StatusInserted),
	}))

	_, complete, err := svc.RenderBatch("a.csv")
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestRenderBatchNeverExportsErroredBatches(t *testing.T) {
	svc, posRepo, _ := newTestService(t)
	require.NoError(t, posRepo.BulkInsert([]domain.DebtPosition{
		position("a.csv", "1", domain.StatusCreated),
		position("a.csv", "2", domain.StatusError),
	}))

	_, complete, err := svc.RenderBatch("a.csv")
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestRenderBatchUnknownFile(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.RenderBatch("missing.csv")
	assert.Error(t, err)
}

func TestRenderBatchCompleted(t *testing.T) {
	svc, posRepo, _ := newTestService(t)
	require.NoError(t, posRepo.BulkInsert([]domain.DebtPosition{
		position("a.csv", "1", domain.StatusCreated),
		position("a.csv", "2", domain.StatusSkipped),
	}))

	content, complete, err := svc.RenderBatch("a.csv")
	require.NoError(t, err)
	require.True(t, complete)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	require.Len(t, lines, 2, "only CREATED rows appear in the output")
	assert.Equal(t, outputHeader, lines[0])
	assert.Contains(t, lines[1], "1;CREATED;")
	assert.Contains(t, lines[1], "347000000000000012")
}

func TestExportCompletedWritesOnce(t *testing.T) {
	svc, posRepo, outputDir := newTestService(t)
	require.NoError(t, posRepo.BulkInsert([]domain.DebtPosition{
		position("done.csv", "1", domain.StatusCreated),
		position("pending.csv", "1", domain.StatusInserted),
	}))

	exported, err := svc.ExportCompleted()
	require.NoError(t, err)
	assert.Equal(t, 1, exported)

	data, err := os.ReadFile(filepath.Join(outputDir, "done.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1;CREATED;")

	_, err = os.Stat(filepath.Join(outputDir, "pending.csv"))
	assert.True(t, os.IsNotExist(err))

	// A second run must not re-export the same batch.
	exported, err = svc.ExportCompleted()
	require.NoError(t, err)
	assert.Zero(t, exported)
}
