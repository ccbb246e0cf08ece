package ingestion

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpay/unifee/internal/config"
	"github.com/civicpay/unifee/internal/domain"
	"github.com/civicpay/unifee/internal/iuv"
	"github.com/civicpay/unifee/internal/repository"
)

func newTestService(t *testing.T) (*Service, *repository.PositionRepo, *repository.QueueRepo, *repository.OrganizationRepo) {
	t.Helper()

	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		SegregationCode:        47,
		IuvMode:                "random",
		IupdPrefix:             "UNIFEE-",
		DebtorFiscalCodeLength: 11,
		PositionBatchSize:      25,
		QueueBatchSize:         25,
		QueueTTL:               time.Hour,
	}

	orgRepo := repository.NewOrganizationRepo(db)
	posRepo := repository.NewPositionRepo(db)
	queueRepo := repository.NewQueueRepo(db)
	generator := iuv.NewGenerator(repository.NewIuvRepo(db), cfg.SegregationCode,
		cfg.IuvMode, 0, cfg.IupdPrefix, log)

	svc := NewService(orgRepo, posRepo, queueRepo, generator, cfg, log)
	return svc, posRepo, queueRepo, orgRepo
}

func seedOrgs(t *testing.T, orgRepo *repository.OrganizationRepo) {
	t.Helper()
	_, err := orgRepo.BulkInsert(testOrgs())
	require.NoError(t, err)
}

func TestIngestBatchEmptyRegistry(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, _, err := svc.IngestBatch("batch.csv", []byte(sampleHeader))
	require.ErrorIs(t, err, domain.ErrEmptyRegistry)
}

func TestIngestBatchRejectionPersistsNothing(t *testing.T) {
	svc, posRepo, queueRepo, orgRepo := newTestService(t)
	seedOrgs(t, orgRepo)

	data := []byte(sampleHeader +
		"1;;;80014930329;;;;;15000;01234567890;Rossi;;;\n" +
		"2;;;80014930329;;;;;0;01234567890;Bianchi;;;\n" + // bad amount
		"3;;;99999999999;;;;;20000;01234567890;Verdi;;;\n") // unknown org

	result, report, err := svc.IngestBatch("batch.csv", data)
	require.NoError(t, err)
	require.Nil(t, result)
	require.NotNil(t, report)

	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, 2, report.InvalidRows)
	require.Len(t, report.ErrorRows, 2)
	assert.Equal(t, 2, report.ErrorRows[0].RowNumber)
	assert.Equal(t, 3, report.ErrorRows[1].RowNumber)
	assert.Contains(t, report.ErrorCSV, "nLinesError/nTotLines:2/3")

	// All-or-nothing: the valid row must not have been persisted either.
	_, total, err := posRepo.List(repository.PositionFilter{BatchFile: "batch.csv"})
	require.NoError(t, err)
	assert.Zero(t, total)

	pending, err := queueRepo.Len()
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestIngestBatchMergesParseAndValidationErrors(t *testing.T) {
	svc, _, _, orgRepo := newTestService(t)
	seedOrgs(t, orgRepo)

	data := []byte(sampleHeader +
		";;;80014930329;;;;;15000;01234567890;Rossi;;;\n" + // parse error: missing id
		"2;;;80014930329;;;;;0;01234567890;Bianchi;;;\n") // validation error

	_, report, err := svc.IngestBatch("batch.csv", data)
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Len(t, report.ErrorRows, 2)
	assert.Equal(t, 1, report.ErrorRows[0].RowNumber)
	assert.Equal(t, 2, report.ErrorRows[1].RowNumber)
}

func TestIngestBatchHappyPath(t *testing.T) {
	svc, posRepo, queueRepo, orgRepo := newTestService(t)
	seedOrgs(t, orgRepo)

	data := []byte(sampleHeader +
		"1;;;80014930329;;;;;15000;01234567890;Rossi;;;Canone 2026\n" +
		"2;001272;;;;;;;30000;09876543210;Bianchi;;;\n" +
		"3;;;80016350821;;;;;20000;11223344556;Verdi;;;\n") // org without IBAN

	result, report, err := svc.IngestBatch("batch.csv", data)
	require.NoError(t, err)
	require.Nil(t, report)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.RowsAccepted)
	assert.Equal(t, 1, result.RowsSkipped)
	assert.Equal(t, 3, result.Persisted)
	assert.Equal(t, 2, result.Enqueued)
	assert.True(t, result.AllEnqueued)

	// Registered rows carry an IUV and stay INSERTED.
	p, err := posRepo.Get("batch.csv", "1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInserted, p.Status)
	assert.Len(t, p.Iuv, iuv.Length)
	assert.Equal(t, "UNIFEE-"+p.Iuv, p.Iupd)
	assert.Equal(t, "Comune di Trieste", p.CompanyName)

	// The IBAN-less organization's row is persisted as SKIPPED, no IUV.
	p, err = posRepo.Get("batch.csv", "3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, p.Status)
	assert.Equal(t, "SKIPPED", p.Note)
	assert.Empty(t, p.Iuv)

	// Exactly one queue message with the two registrable rows.
	msg, ok, err := queueRepo.Dequeue()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "batch.csv", msg.BatchFile)
	assert.Zero(t, msg.RetryCount)
	require.Len(t, msg.Rows, 2)
	for _, row := range msg.Rows {
		assert.Equal(t, domain.StepNone, row.RetryAction)
		assert.Len(t, row.Iuv, iuv.Length)
		assert.NotEmpty(t, row.Iban)
	}

	_, ok, err = queueRepo.Dequeue()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIngestBatchChunksQueueMessages(t *testing.T) {
	svc, _, queueRepo, orgRepo := newTestService(t)
	seedOrgs(t, orgRepo)
	svc.cfg.QueueBatchSize = 2

	data := sampleHeader
	for i := 1; i <= 5; i++ {
		data += string(rune('0'+i)) + ";;;80014930329;;;;;15000;01234567890;Rossi;;;\n"
	}

	result, report, err := svc.IngestBatch("batch.csv", []byte(data))
	require.NoError(t, err)
	require.Nil(t, report)
	assert.Equal(t, 5, result.Enqueued)

	pending, err := queueRepo.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, pending) // 2 + 2 + 1
}

func TestPartition(t *testing.T) {
	parts := partition([]int{1, 2, 3, 4, 5}, 2)
	require.Len(t, parts, 3)
	assert.Equal(t, []int{1, 2}, parts[0])
	assert.Equal(t, []int{3, 4}, parts[1])
	assert.Equal(t, []int{5}, parts[2])

	assert.Nil(t, partition([]int(nil), 3))
	assert.Len(t, partition([]int{1}, 10), 1)
}
