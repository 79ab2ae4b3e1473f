package network

import (
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
)

const (
	ExchangeRunSummary = "tour.import.summary"

	ResultCompleted = "completed"
	ResultCancelled = "cancelled"
)

// Notifier receives the summary of every pipeline run.
type Notifier interface {
	Notify(summary entities.RunSummary) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(summary entities.RunSummary) error

func (f NotifierFunc) Notify(summary entities.RunSummary) error {
	return f(summary)
}

// RunSummaryPublisher broadcasts run summaries on a fanout exchange.
type RunSummaryPublisher struct {
	amqp Messaging
	now  func() time.Time
}

func NewRunSummaryPublisher(amqp Messaging) *RunSummaryPublisher {
	return &RunSummaryPublisher{amqp: amqp, now: time.Now}
}

func (p *RunSummaryPublisher) Notify(summary entities.RunSummary) error {
	message := RunSummaryMessage{
		FinishedAt: p.now().UTC(),
		Result:     ResultCompleted,
		Summary:    summary,
	}
	if summary.Cancelled {
		message.Result = ResultCancelled
	}
	return p.amqp.PublishPersistentMessage(ExchangeRunSummary, exchangeTypeFanout, "", message, nil)
}
