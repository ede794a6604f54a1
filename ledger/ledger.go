// Package ledger implements the idempotency ledger: a durable, per-
// operation record of at-most-once / exactly-once-effect work, with
// retry bookkeeping and rollback support. Records are file-backed, one
// JSON document per fingerprint; the ledger is single-host by design,
// clustering is left to an external coordinator.
package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/resilientkernel/kernel/platform"
	"github.com/resilientkernel/kernel/telemetry"
)

func init() {
	telemetry.DeclareMetrics("ledger", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{Name: "ledger.operations", Type: "counter", Help: "Ledger should_execute decisions", Labels: []string{"reason"}},
			{Name: "ledger.transitions", Type: "counter", Help: "Ledger record state transitions", Labels: []string{"from", "to"}},
			{Name: "ledger.duration_ms", Type: "histogram", Help: "Time a record spent pending before its terminal transition", Labels: []string{"operation", "status"}, Unit: "ms"},
			{Name: "ledger.cleanup.removed", Type: "counter", Help: "Stale records removed by cleanup"},
		},
	})
}

// DefaultMaxAge is how long a non-pending record may live before cleanup
// considers it stale.
const DefaultMaxAge = 24 * time.Hour

// DefaultStuckThreshold is how long a pending record may live before
// should_execute treats it as abandoned.
const DefaultStuckThreshold = 10 * time.Minute

// defaultBackoffInitialMs/defaultBackoffCapMs govern the backoff window a
// failed record must clear before should_execute allows a retry.
const (
	defaultBackoffInitialMs = 1000
	defaultBackoffCapMs     = 30000
	defaultMaxAttempts      = 5
)

// Decision is the result of ShouldExecute.
type Decision struct {
	Execute bool
	Record  *Record
	Reason  string
}

// KeySpec identifies the logical operation ShouldExecute/Begin act on.
type KeySpec struct {
	Operation  string
	Parameters map[string]interface{}
	Context    map[string]interface{}
}

func (k KeySpec) fingerprint() string {
	return GenerateKey(k.Operation, k.Parameters, k.Context)
}

// Token is returned by Begin and consumed by Complete/Fail/Rollback.
type Token struct {
	ID  string
	Key string
}

// Store is the persistence interface the Ledger depends on. FileStore is
// the only production implementation; tests may supply an in-memory one.
type Store interface {
	Save(rec *Record) error
	Load(key string) (*Record, error)
	Delete(key string) error
	List() ([]string, error)
}

// Ledger coordinates idempotency decisions and record transitions. It is
// safe under concurrent access to distinct keys; operations against the
// same key are serialized internally by a per-key mutex, mirroring the
// narrow-lock-plus-explicit-state discipline used across this repo.
type Ledger struct {
	store  Store
	logger platform.Logger

	maxAge         time.Duration
	stuckThreshold time.Duration
	maxAttempts    int

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex

	tokensMu sync.Mutex
	tokens   map[string]string // token id -> key
}

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithLogger injects a structured logger.
func WithLogger(l platform.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// WithMaxAge overrides the staleness window for non-pending records.
func WithMaxAge(d time.Duration) Option {
	return func(lg *Ledger) { lg.maxAge = d }
}

// WithStuckThreshold overrides the abandonment window for pending records.
func WithStuckThreshold(d time.Duration) Option {
	return func(lg *Ledger) { lg.stuckThreshold = d }
}

// WithMaxAttempts overrides how many failed attempts are tolerated
// before should_execute refuses further retries.
func WithMaxAttempts(n int) Option {
	return func(lg *Ledger) { lg.maxAttempts = n }
}

// New builds a Ledger backed by store.
func New(store Store, opts ...Option) *Ledger {
	lg := &Ledger{
		store:          store,
		logger:         platform.NoOpLogger{},
		maxAge:         DefaultMaxAge,
		stuckThreshold: DefaultStuckThreshold,
		maxAttempts:    defaultMaxAttempts,
		keyLocks:       make(map[string]*sync.Mutex),
		tokens:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(lg)
	}
	return lg
}

// GenerateKey computes the fingerprint for an operation and its inputs.
func (l *Ledger) GenerateKey(op string, parameters, ctx map[string]interface{}) string {
	return GenerateKey(op, parameters, ctx)
}

func (l *Ledger) lockFor(key string) *sync.Mutex {
	l.keyLocksMu.Lock()
	defer l.keyLocksMu.Unlock()
	m, ok := l.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		l.keyLocks[key] = m
	}
	return m
}

func nowMs() int64 { return time.Now().UnixMilli() }

// ShouldExecute decides whether an operation identified by spec should
// run, based on any prior record for its fingerprint.
func (l *Ledger) ShouldExecute(spec KeySpec) (Decision, error) {
	key := spec.fingerprint()
	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.store.Load(key)
	if err != nil {
		return Decision{}, err
	}
	if rec == nil {
		telemetry.Counter("ledger.operations", "reason", "no_prior")
		return Decision{Execute: true, Reason: "no prior"}, nil
	}

	now := nowMs()
	if l.isStale(rec, now) {
		if err := l.store.Delete(key); err != nil {
			return Decision{}, err
		}
		telemetry.Counter("ledger.operations", "reason", "expired")
		return Decision{Execute: true, Reason: "expired"}, nil
	}

	switch rec.Status {
	case StatusCompleted:
		telemetry.Counter("ledger.operations", "reason", "already_completed")
		return Decision{Execute: false, Record: rec.clone(), Reason: "already completed"}, nil

	case StatusPending:
		if now-rec.StartTime > l.stuckThreshold.Milliseconds() {
			if err := l.store.Delete(key); err != nil {
				return Decision{}, err
			}
			telemetry.Counter("ledger.operations", "reason", "stuck_reset")
			return Decision{Execute: true, Reason: "stuck reset"}, nil
		}
		telemetry.Counter("ledger.operations", "reason", "in_progress")
		return Decision{Execute: false, Record: rec.clone(), Reason: "in progress"}, nil

	case StatusFailed:
		if rec.Attempts >= l.maxAttempts {
			telemetry.Counter("ledger.operations", "reason", "max_retries")
			return Decision{Execute: false, Record: rec.clone(), Reason: "max retries"}, nil
		}
		backoff := backoffMs(rec.Attempts)
		if now-rec.LastAttemptTime < backoff {
			telemetry.Counter("ledger.operations", "reason", "backoff")
			return Decision{Execute: false, Record: rec.clone(), Reason: "backoff"}, nil
		}
		telemetry.Counter("ledger.operations", "reason", "retrying")
		return Decision{Execute: true, Record: rec.clone(), Reason: "retrying"}, nil

	case StatusRolledBack:
		telemetry.Counter("ledger.operations", "reason", "rolled_back")
		return Decision{Execute: true, Record: rec.clone(), Reason: "rolled back"}, nil

	default:
		return Decision{Execute: true, Reason: "no prior"}, nil
	}
}

// backoffMs computes backoff(attempts) = initial * 2^(attempts-1), capped.
func backoffMs(attempts int) int64 {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(defaultBackoffInitialMs) * math.Pow(2, float64(attempts-1))
	if delay > defaultBackoffCapMs {
		delay = defaultBackoffCapMs
	}
	return int64(delay)
}

func (l *Ledger) isStale(rec *Record, now int64) bool {
	if rec.Status == StatusPending {
		return false
	}
	return now-rec.StartTime > l.maxAge.Milliseconds()
}

// Begin records the start of an attempt at spec, returning a Token
// consumed by the terminal transition. It bumps Attempts and sets
// Status=pending.
func (l *Ledger) Begin(spec KeySpec, rollbackData interface{}) (Token, error) {
	key := spec.fingerprint()
	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.store.Load(key)
	if err != nil {
		return Token{}, err
	}

	now := nowMs()
	attempts := 1
	if existing != nil {
		attempts = existing.Attempts + 1
	}

	rec := &Record{
		Key:             key,
		Operation:       spec.Operation,
		Parameters:      spec.Parameters,
		Context:         spec.Context,
		Status:          StatusPending,
		StartTime:       now,
		Attempts:        attempts,
		LastAttemptTime: now,
		RollbackData:    rollbackData,
	}
	if err := l.store.Save(rec); err != nil {
		return Token{}, err
	}

	id := uuid.NewString()
	l.tokensMu.Lock()
	l.tokens[id] = key
	l.tokensMu.Unlock()

	telemetry.Counter("ledger.transitions", "from", "none", "to", "pending")
	return Token{ID: id, Key: key}, nil
}

func (l *Ledger) resolveToken(tok Token) (string, error) {
	key := tok.Key
	if key == "" {
		l.tokensMu.Lock()
		key = l.tokens[tok.ID]
		l.tokensMu.Unlock()
	}
	if key == "" {
		return "", platform.NewKernelError("ledger.resolveToken", "not_found", platform.ErrNotFound)
	}
	return key, nil
}

// Complete transitions the record for tok to completed, storing result.
func (l *Ledger) Complete(tok Token, result interface{}) error {
	return l.terminal(tok, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Result = result
	})
}

// Fail transitions the record for tok to failed, storing errMsg.
func (l *Ledger) Fail(tok Token, errMsg string) error {
	return l.terminal(tok, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Error = errMsg
	})
}

// Rollback transitions a completed record to rolled_back, invoking fn
// with the record's rollback data if fn is non-nil. Per this repo's
// resolved open question, a failing fn returns an error to the caller
// without mutating status away from completed.
func (l *Ledger) Rollback(tok Token, fn func(rollbackData interface{}) error) error {
	key, err := l.resolveToken(tok)
	if err != nil {
		return err
	}
	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.store.Load(key)
	if err != nil {
		return err
	}
	if rec == nil {
		return platform.NewKernelError("ledger.Rollback", "not_found", platform.ErrNotFound)
	}

	if fn != nil {
		if err := fn(rec.RollbackData); err != nil {
			return platform.NewKernelError("ledger.Rollback", "operation_failure", fmt.Errorf("%w: %v", platform.ErrOperationFailure, err))
		}
	}

	from := string(rec.Status)
	rec.Status = StatusRolledBack
	rec.EndTime = nowMs()
	if err := l.store.Save(rec); err != nil {
		return err
	}
	telemetry.Counter("ledger.transitions", "from", from, "to", "rolled_back")
	return nil
}

func (l *Ledger) terminal(tok Token, mutate func(rec *Record)) error {
	key, err := l.resolveToken(tok)
	if err != nil {
		return err
	}
	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.store.Load(key)
	if err != nil {
		return err
	}
	if rec == nil {
		return platform.NewKernelError("ledger.terminal", "not_found", platform.ErrNotFound)
	}

	from := string(rec.Status)
	rec.LastAttemptTime = nowMs()
	mutate(rec)
	rec.EndTime = nowMs()

	if err := l.store.Save(rec); err != nil {
		return err
	}

	telemetry.Counter("ledger.transitions", "from", from, "to", string(rec.Status))
	telemetry.Histogram("ledger.duration_ms", float64(rec.EndTime-rec.StartTime), "operation", rec.Operation, "status", string(rec.Status))

	l.tokensMu.Lock()
	delete(l.tokens, tok.ID)
	l.tokensMu.Unlock()
	return nil
}

// Get returns the current record for key, or nil if none exists.
func (l *Ledger) Get(key string) (*Record, error) {
	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	rec, err := l.store.Load(key)
	if err != nil {
		return nil, err
	}
	return rec.clone(), nil
}

// RecordsFor returns every stored record whose Operation matches op.
func (l *Ledger) RecordsFor(op string) ([]*Record, error) {
	keys, err := l.store.List()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, key := range keys {
		rec, err := l.store.Load(key)
		if err != nil || rec == nil {
			continue
		}
		if rec.Operation == op {
			out = append(out, rec.clone())
		}
	}
	return out, nil
}

// Cleanup removes non-pending records older than maxAge (or the
// Ledger's configured default when maxAge <= 0), returning the count
// removed.
func (l *Ledger) Cleanup(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = l.maxAge
	}
	keys, err := l.store.List()
	if err != nil {
		return 0, err
	}
	now := nowMs()
	removed := 0
	for _, key := range keys {
		lock := l.lockFor(key)
		lock.Lock()
		rec, err := l.store.Load(key)
		if err == nil && rec != nil && rec.Status != StatusPending && now-rec.StartTime > maxAge.Milliseconds() {
			if err := l.store.Delete(key); err == nil {
				removed++
			}
		}
		lock.Unlock()
	}
	if removed > 0 {
		telemetry.CounterN("ledger.cleanup.removed", float64(removed))
	}
	return removed, nil
}

// Stats aggregates counts and timing across every stored record.
type Stats struct {
	TotalByStatus    map[Status]int
	TotalByOperation map[string]int
	AverageDurationMs float64
	SuccessRate      float64
}

// Stats computes aggregate statistics over all stored records.
func (l *Ledger) Stats() (Stats, error) {
	keys, err := l.store.List()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		TotalByStatus:    make(map[Status]int),
		TotalByOperation: make(map[string]int),
	}
	var totalDuration float64
	var withDuration int
	var terminalCount int
	var successCount int

	for _, key := range keys {
		rec, err := l.store.Load(key)
		if err != nil || rec == nil {
			continue
		}
		stats.TotalByStatus[rec.Status]++
		stats.TotalByOperation[rec.Operation]++
		if rec.EndTime > 0 {
			totalDuration += float64(rec.EndTime - rec.StartTime)
			withDuration++
		}
		if rec.Status == StatusCompleted || rec.Status == StatusFailed {
			terminalCount++
			if rec.Status == StatusCompleted {
				successCount++
			}
		}
	}
	if withDuration > 0 {
		stats.AverageDurationMs = totalDuration / float64(withDuration)
	}
	if terminalCount > 0 {
		stats.SuccessRate = float64(successCount) / float64(terminalCount)
	}
	return stats, nil
}
