package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type stubNumbers struct {
	numbers []int64
	err     error
}

func (s stubNumbers) InvoiceNumbers(context.Context) ([]int64, error) {
	return s.numbers, s.err
}

type stubQueue struct {
	retried  []int64
	rendered [][2]int64
	err      error
}

func (q *stubQueue) EnqueueFulfillmentRetry(_ context.Context, orderID int64) error {
	q.retried = append(q.retried, orderID)
	return q.err
}

func (q *stubQueue) EnqueueDocumentRender(_ context.Context, invoiceID, documentID int64) error {
	q.rendered = append(q.rendered, [2]int64{invoiceID, documentID})
	return q.err
}

type stubInspector map[string]*asynq.QueueInfo

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestCheckNumberingJSON(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewNumberingCLI(stubNumbers{numbers: []int64{1, 2, 4, 4}}).CheckCommand(context.Background(), NumberingOptions{
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, 10, code)
	require.Empty(t, stderr.String())

	var summary struct {
		OK         bool    `json:"ok"`
		Last       int64   `json:"last"`
		Missing    []int64 `json:"missing"`
		Duplicates []int64 `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, int64(4), summary.Last)
	require.Equal(t, []int64{3}, summary.Missing)
	require.Equal(t, []int64{4}, summary.Duplicates)
}

func TestCheckNumberingHuman(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := NewNumberingCLI(stubNumbers{numbers: []int64{1, 2, 3}}).CheckCommand(context.Background(), NumberingOptions{Stdout: stdout})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "last number: INV-3")
	require.Contains(t, stdout.String(), "sequence OK")

	stderr := new(bytes.Buffer)
	code = NewNumberingCLI(stubNumbers{err: errors.New("connection refused")}).CheckCommand(context.Background(), NumberingOptions{Stdout: stdout, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "connection refused")
}

func TestJobsCommand(t *testing.T) {
	queue := &stubQueue{}
	c := NewJobsCLI(queue, stubInspector{jobs.QueueCritical: {Queue: jobs.QueueCritical, Pending: 2, Retry: 1}})
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	opts := func(action string) JobsOptions {
		return JobsOptions{Action: action, Stdout: stdout, Stderr: stderr}
	}

	o := opts("retry-fulfillment")
	require.Equal(t, 1, c.Command(context.Background(), o))
	o.OrderID = 12
	require.Zero(t, c.Command(context.Background(), o))
	require.Equal(t, []int64{12}, queue.retried)

	o = opts("prerender")
	o.InvoiceID = 5
	require.Zero(t, c.Command(context.Background(), o))
	require.Equal(t, [][2]int64{{5, 0}}, queue.rendered)

	require.Zero(t, c.Command(context.Background(), opts("stats")))
	require.Contains(t, stdout.String(), "critical   pending=2 active=0 scheduled=0 retry=1")
	require.Contains(t, stdout.String(), "default    pending=0")

	require.Equal(t, 2, c.Command(context.Background(), opts("purge")))
}
