package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Queue is the subset of the job client used by the CLI.
type Queue interface {
	EnqueueFulfillmentRetry(ctx context.Context, orderID int64) error
	EnqueueDocumentRender(ctx context.Context, invoiceID, documentID int64) error
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	queue     Queue
	inspector QueueInspector
}

// NewJobsCLI builds the helpers on top of an enqueuer and an inspector.
func NewJobsCLI(queue Queue, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{queue: queue, inspector: inspector}
}

// JobsOptions carries the flags of the jobs command.
type JobsOptions struct {
	Action     string
	OrderID    int64
	InvoiceID  int64
	DocumentID int64
	Stdout     io.Writer
	Stderr     io.Writer
}

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// Command runs one jobs action and returns the process exit code.
func (c *JobsCLI) Command(ctx context.Context, opts JobsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	switch opts.Action {
	case "retry-fulfillment":
		if opts.OrderID <= 0 {
			_, _ = fmt.Fprintln(opts.Stderr, "jobs retry-fulfillment: --order is required and must be positive")
			return 1
		}
		if err := c.queue.EnqueueFulfillmentRetry(ctx, opts.OrderID); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs retry-fulfillment: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "queued %s for order %d\n", jobs.TaskFulfillmentRetry, opts.OrderID)
	case "prerender":
		if opts.InvoiceID <= 0 && opts.DocumentID <= 0 {
			_, _ = fmt.Fprintln(opts.Stderr, "jobs prerender: --invoice or --doc is required")
			return 1
		}
		if err := c.queue.EnqueueDocumentRender(ctx, opts.InvoiceID, opts.DocumentID); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs prerender: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "queued %s\n", jobs.TaskDocumentsRender)
	case "stats":
		stats, err := c.InspectQueues()
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		for _, s := range stats {
			_, _ = fmt.Fprintf(opts.Stdout, "%-10s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: unknown action %q (retry-fulfillment, prerender, stats)\n", opts.Action)
		return 2
	}
	return 0
}

// InspectQueues reports the state of every ledger queue. Queues that were never used report zeros.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueCritical, jobs.QueueDefault} {
		stats := QueueStats{Queue: queue}
		info, err := c.inspector.GetQueueInfo(queue)
		switch {
		case errors.Is(err, asynq.ErrQueueNotFound):
		case err != nil:
			return nil, err
		case info != nil:
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}
