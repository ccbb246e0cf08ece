package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/config"
	"github.com/civicpay/unifee/internal/domain"
	"github.com/civicpay/unifee/internal/gpd"
)

// OutcomeKind classifies a row's fate after one registration attempt.
type OutcomeKind int

const (
	// OutcomeDone means the position was created and published; the
	// persisted entity moves to CREATED.
	OutcomeDone OutcomeKind = iota
	// OutcomeError is terminal: the platform rejected the request and
	// retrying cannot help.
	OutcomeError
	// OutcomeRetry means a transient failure; Row.RetryAction marks the
	// phase to resume from.
	OutcomeRetry
)

// Outcome is the explicit per-row result of one state-machine pass,
// returned instead of mutating shared state in place.
type Outcome struct {
	Row  domain.RetryableRow
	Kind OutcomeKind
}

// RegistrationClient is the two-phase remote registration API.
type RegistrationClient interface {
	CreatePosition(ctx context.Context, orgFiscalCode string, pos gpd.PaymentPosition) (int, error)
	PublishPosition(ctx context.Context, orgFiscalCode, iupd string) (int, error)
}

// StatusStore updates a single persisted entity's status.
type StatusStore interface {
	UpdateStatus(batchFile, rowID string, status domain.Status) error
}

// Requeuer pushes a follow-up retry batch to the work queue.
type Requeuer interface {
	Enqueue(msg *domain.BatchMessage, delay, ttl time.Duration) error
}

// Orchestrator consumes batch messages and drives each row through the
// create/publish state machine with a bounded worker pool.
type Orchestrator struct {
	client RegistrationClient
	store  StatusStore
	queue  Requeuer
	cfg    *config.Config
	log    logrus.FieldLogger
}

func New(client RegistrationClient, store StatusStore, queue Requeuer, cfg *config.Config, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		client: client,
		store:  store,
		queue:  queue,
		cfg:    cfg,
		log:    log.WithField("component", "orchestrator"),
	}
}

// ProcessMessage handles one retry batch: fan out the rows, merge the
// outcomes, update persisted statuses and requeue only the rows that
// still need work. Rows whose attempts are exhausted become ERROR.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg *domain.BatchMessage) error {
	outcomes := o.processRows(ctx, msg.Rows)

	var retryRows []domain.RetryableRow
	done, failed := 0, 0

	for _, out := range outcomes {
		switch out.Kind {
		case OutcomeDone:
			done++
			o.updateStatus(msg.BatchFile, out.Row.ID, domain.StatusCreated)
		case OutcomeError:
			failed++
			o.updateStatus(msg.BatchFile, out.Row.ID, domain.StatusError)
		case OutcomeRetry:
			retryRows = append(retryRows, out.Row)
		}
	}

	if len(retryRows) > 0 {
		if msg.RetryCount < o.cfg.MaxRetryCount {
			next := &domain.BatchMessage{
				BatchFile:  msg.BatchFile,
				RetryCount: msg.RetryCount + 1,
				Rows:       retryRows,
			}
			if err := o.queue.Enqueue(next, o.cfg.QueueDelay, o.cfg.QueueTTL); err != nil {
				o.log.Errorf("[%s] requeue %d rows: %v", msg.BatchFile, len(retryRows), err)
				return err
			}
			o.log.Infof("[%s] requeued %d rows (retry %d/%d)",
				msg.BatchFile, len(retryRows), msg.RetryCount+1, o.cfg.MaxRetryCount)
		} else {
			// Attempts exhausted: downgrade to terminal ERROR.
			for i := range retryRows {
				failed++
				o.updateStatus(msg.BatchFile, retryRows[i].ID, domain.StatusError)
			}
			o.log.Warnf("[%s] %d rows exhausted %d attempts, marked ERROR",
				msg.BatchFile, len(retryRows), o.cfg.MaxRetryCount)
		}
	}

	o.log.Infof("[%s] batch processed: done=%d error=%d retry=%d",
		msg.BatchFile, done, failed, len(retryRows))
	return nil
}

// processRows fans the rows out over a bounded worker pool and collects
// the per-row outcomes. Rows are independent; no ordering is guaranteed.
func (o *Orchestrator) processRows(ctx context.Context, rows []domain.RetryableRow) []Outcome {
	if len(rows) == 0 {
		return nil
	}

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	jobs := make(chan domain.RetryableRow)
	results := make(chan Outcome, len(rows))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				results <- o.ProcessRow(ctx, row)
			}
		}()
	}

	for _, row := range rows {
		jobs <- row
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(rows))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// ProcessRow advances one row through the state machine, resuming from
// the phase recorded in RetryAction. Create runs for NONE and CREATE and
// falls through to publish on success; a 4xx at either phase is terminal.
func (o *Orchestrator) ProcessRow(ctx context.Context, row domain.RetryableRow) Outcome {
	if row.RetryAction == domain.StepNone || row.RetryAction == domain.StepCreate {
		code, err := o.client.CreatePosition(ctx, row.OrgFiscalCode, gpd.PositionPayload(row))
		switch classify(code, err, http.StatusCreated) {
		case stepOk:
		case stepPermanent:
			o.log.Errorf("create %s rejected with HTTP %d", row.Iupd, code)
			row.RetryAction = domain.StepError
			return Outcome{Row: row, Kind: OutcomeError}
		default:
			o.logTransient("create", row.Iupd, code, err)
			row.RetryAction = domain.StepCreate
			return Outcome{Row: row, Kind: OutcomeRetry}
		}
	}

	code, err := o.client.PublishPosition(ctx, row.OrgFiscalCode, row.Iupd)
	switch classify(code, err, http.StatusOK) {
	case stepOk:
		return Outcome{Row: row, Kind: OutcomeDone}
	case stepPermanent:
		o.log.Errorf("publish %s rejected with HTTP %d", row.Iupd, code)
		row.RetryAction = domain.StepError
		return Outcome{Row: row, Kind: OutcomeError}
	default:
		o.logTransient("publish", row.Iupd, code, err)
		row.RetryAction = domain.StepPublish
		return Outcome{Row: row, Kind: OutcomeRetry}
	}
}

func (o *Orchestrator) updateStatus(batchFile, rowID string, status domain.Status) {
	if err := o.store.UpdateStatus(batchFile, rowID, status); err != nil {
		o.log.Errorf("[%s] update %s to %s: %v", batchFile, rowID, status, err)
	}
}

func (o *Orchestrator) logTransient(phase, iupd string, code int, err error) {
	if err != nil {
		o.log.Warnf("%s %s failed: %v", phase, iupd, err)
		return
	}
	o.log.Warnf("%s %s got unexpected HTTP %d, will retry", phase, iupd, code)
}

// --- outcome classification ---

type stepClass int

const (
	stepOk stepClass = iota
	stepPermanent
	stepTransient
)

// classify maps an HTTP status (or transport error) to a step outcome.
// Only the expected success code advances; 4xx is permanent; everything
// else, including timeouts, network errors and unexpected 2xx, is
// transient and retryable.
func classify(code int, err error, want int) stepClass {
	if err != nil {
		return stepTransient
	}
	if code == want {
		return stepOk
	}
	if code >= 400 && code < 500 {
		return stepPermanent
	}
	return stepTransient
}
