package shared

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit statuses.
const (
	AuditSuccess = "SUCCESS"
	AuditFailure = "FAILURE"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	EventID  uuid.UUID
	ActorID  int64
	Action   string
	Resource string
	Status   string
	IP       string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	log, err := normaliseAudit(ctx, log)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (event_id, actor_id, action, resource, status, ip, meta, occurred_at)
VALUES ($1, NULLIF($2, 0), $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		log.EventID, log.ActorID, log.Action, log.Resource, log.Status, log.IP, metaJSON, log.At)
	return err
}

// normaliseAudit fills identifiers and request metadata missing from the entry.
func normaliseAudit(ctx context.Context, log AuditLog) (AuditLog, error) {
	if log.Action == "" || log.Resource == "" {
		return log, errors.New("audit log requires action/resource")
	}
	if log.EventID == uuid.Nil {
		log.EventID = uuid.New()
	}
	if log.Status == "" {
		log.Status = AuditSuccess
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	req := RequestInfoFromContext(ctx)
	if log.ActorID == 0 {
		log.ActorID = req.ActorID
	}
	if log.IP == "" {
		log.IP = req.IP
	}
	return log, nil
}

// MemoryAuditLog keeps entries in memory; used by tests and local runs without a database.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditLog
}

// Record appends the entry.
func (m *MemoryAuditLog) Record(ctx context.Context, log AuditLog) error {
	log, err := normaliseAudit(ctx, log)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, log)
	return nil
}

// Entries returns recorded entries filtered by action; empty action returns all.
func (m *MemoryAuditLog) Entries(action string) []AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditLog
	for _, e := range m.entries {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
