package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/domain"
)

// MessageSource is the consuming side of the work queue.
type MessageSource interface {
	Dequeue() (*domain.BatchMessage, bool, error)
}

// Consumer polls the work queue and feeds batch messages to the
// orchestrator until its context is cancelled.
type Consumer struct {
	source   MessageSource
	orch     *Orchestrator
	interval time.Duration
	log      logrus.FieldLogger
}

func NewConsumer(source MessageSource, orch *Orchestrator, interval time.Duration, log logrus.FieldLogger) *Consumer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Consumer{
		source:   source,
		orch:     orch,
		interval: interval,
		log:      log.WithField("component", "consumer"),
	}
}

// Run blocks until ctx is done. Messages are processed one at a time;
// parallelism lives inside the orchestrator's worker pool.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Infof("queue consumer started, polling every %s", c.interval)
	for {
		if ctx.Err() != nil {
			c.log.Info("queue consumer stopped")
			return
		}

		msg, ok, err := c.source.Dequeue()
		if err != nil {
			c.log.Errorf("dequeue: %v", err)
		}
		if ok {
			if err := c.orch.ProcessMessage(ctx, msg); err != nil {
				c.log.Errorf("[%s] process message: %v", msg.BatchFile, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.log.Info("queue consumer stopped")
			return
		case <-time.After(c.interval):
		}
	}
}
