package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type retrierStub struct {
	calls []int64
	err   error
}

func (r *retrierStub) RetryFulfillment(_ context.Context, orderID int64) error {
	r.calls = append(r.calls, orderID)
	return r.err
}

type prerendererStub struct {
	mu    sync.Mutex
	seen  []string
	errOn string
	err   error
}

func (p *prerendererStub) Prerender(_ context.Context, kind string, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, fmt.Sprintf("%s:%d", kind, id))
	if kind == p.errOn {
		return p.err
	}
	return nil
}

type enqueuerStub struct {
	tasks []*asynq.Task
	err   error
}

func (e *enqueuerStub) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("t-%d", len(e.tasks)), Type: task.Type()}, nil
}

func (e *enqueuerStub) Close() error { return nil }

func TestFulfillmentRetryTaskPayload(t *testing.T) {
	task, err := NewFulfillmentRetryTask(42)
	require.NoError(t, err)
	require.Equal(t, TaskFulfillmentRetry, task.Type())
	var payload FulfillmentRetryPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(42), payload.OrderID)

	_, err = NewFulfillmentRetryTask(0)
	require.Error(t, err)
	_, err = NewDocumentsRenderTask(DocumentsRenderPayload{})
	require.Error(t, err)
}

func TestFulfillmentRetryJob(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	task, err := NewFulfillmentRetryTask(7)
	require.NoError(t, err)

	stub := &retrierStub{}
	job := NewFulfillmentRetryJob(stub, nil, metrics)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{7}, stub.calls)

	stub.err = fmt.Errorf("lock: %w", shared.ErrConcurrencyConflict)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	stub.err = fmt.Errorf("stock: %w", shared.ErrInsufficientStock)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskFulfillmentRetry, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Len(t, stub.calls, 3)
}

func TestDocumentsRenderJobRendersBothDocuments(t *testing.T) {
	stub := &prerendererStub{}
	job := NewDocumentsRenderJob(stub, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewDocumentsRenderTask(DocumentsRenderPayload{InvoiceID: 3, DocumentID: 5})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	sort.Strings(stub.seen)
	require.Equal(t, []string{"invoice:3", "wz:5"}, stub.seen)

	only, err := NewDocumentsRenderTask(DocumentsRenderPayload{InvoiceID: 9})
	require.NoError(t, err)
	stub.seen = nil
	require.NoError(t, job.Handle(context.Background(), only))
	require.Equal(t, []string{"invoice:9"}, stub.seen)
}

func TestDocumentsRenderJobFailures(t *testing.T) {
	task, err := NewDocumentsRenderTask(DocumentsRenderPayload{InvoiceID: 3, DocumentID: 5})
	require.NoError(t, err)

	down := &prerendererStub{errOn: documents.KindWarehouse, err: fmt.Errorf("gotenberg: %w", shared.ErrGatewayUnavailable)}
	err = NewDocumentsRenderJob(down, nil, nil).Handle(context.Background(), task)
	require.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	gone := &prerendererStub{errOn: documents.KindInvoice, err: fmt.Errorf("invoice 3: %w", shared.ErrNotFound)}
	err = NewDocumentsRenderJob(gone, nil, nil).Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestClientEnqueues(t *testing.T) {
	stub := &enqueuerStub{}
	client := NewClientWith(stub, nil)

	require.NoError(t, client.EnqueueFulfillmentRetry(context.Background(), 11))
	require.NoError(t, client.EnqueueDocumentRender(context.Background(), 4, 2))
	require.Len(t, stub.tasks, 2)
	require.Equal(t, TaskFulfillmentRetry, stub.tasks[0].Type())
	require.Equal(t, TaskDocumentsRender, stub.tasks[1].Type())

	stub.err = asynq.ErrTaskIDConflict
	require.NoError(t, client.EnqueueFulfillmentRetry(context.Background(), 11))
	stub.err = errors.New("redis down")
	require.Error(t, client.EnqueueFulfillmentRetry(context.Background(), 11))
	require.Error(t, client.EnqueueDocumentRender(context.Background(), 4, 2))
}

func TestFulfillmentRetryCanBeQueuedAgainAfterLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}, nil)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	taskKeys := func() int {
		n := 0
		for _, key := range mr.Keys() {
			if strings.HasPrefix(key, "asynq:{critical}:t:") {
				n++
			}
		}
		return n
	}

	require.NoError(t, client.EnqueueFulfillmentRetry(ctx, 11))
	require.NoError(t, client.EnqueueFulfillmentRetry(ctx, 11))
	require.Equal(t, 1, taskKeys())

	require.NoError(t, client.EnqueueFulfillmentRetry(ctx, 12))
	require.Equal(t, 2, taskKeys())

	// The first task may be archived by now; its order must still be accepted once the lock lapses.
	mr.FastForward(FulfillmentUniqueTTL + time.Second)
	require.NoError(t, client.EnqueueFulfillmentRetry(ctx, 11))
	require.Equal(t, 3, taskKeys())
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[{"queue":"critical","pending":0,"retry":0,"dead":0},{"queue":"default","pending":0,"retry":0,"dead":0}]}`, rec.Body.String())
}

func TestRetryDelayIsCapped(t *testing.T) {
	require.Equal(t, "5s", retryDelay(0, nil, nil).String())
	require.Equal(t, "5m0s", retryDelay(500, nil, nil).String())
}

type numbersStub struct {
	numbers []int64
	err     error
}

func (n numbersStub) InvoiceNumbers(context.Context) ([]int64, error) { return n.numbers, n.err }

func TestNumberingAuditJob(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	task := NewNumberingAuditTask()
	require.Equal(t, TaskNumberingAudit, task.Type())

	require.NoError(t, NewNumberingAuditJob(numbersStub{numbers: []int64{1, 2, 3}}, nil, metrics).Handle(context.Background(), task))
	require.NoError(t, NewNumberingAuditJob(numbersStub{numbers: []int64{1, 3, 3}}, nil, metrics).Handle(context.Background(), task))

	err := NewNumberingAuditJob(numbersStub{err: errors.New("db down")}, nil, metrics).Handle(context.Background(), task)
	require.EqualError(t, err, "db down")
	require.Error(t, (*NumberingAuditJob)(nil).Handle(context.Background(), task))
}

func TestRedisOpt(t *testing.T) {
	opt, err := RedisOpt("redis://:secret@queue:6380/3")
	require.NoError(t, err)
	require.Equal(t, "queue:6380", opt.Addr)
	require.Equal(t, "secret", opt.Password)
	require.Equal(t, 3, opt.DB)

	opt, err = RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", opt.Addr)

	_, err = RedisOpt("")
	require.Error(t, err)
}
