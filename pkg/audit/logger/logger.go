package logger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/integrity"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/telemetry/logging"
	"mercator-hq/arbiter/pkg/telemetry/tracing"
)

// Mode selects how logs reach storage.
type Mode string

const (
	// ModeSync writes each log before Log returns.
	ModeSync Mode = "sync"

	// ModeBatch buffers logs and writes them in batches.
	ModeBatch Mode = "batch"
)

// ErrBufferFull is returned in batch mode when storage has fallen so far
// behind that the buffer reached MaxBuffered.
var ErrBufferFull = errors.New("decision log buffer is full")

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("decision logger is closed")

// Config contains configuration for the decision logger.
type Config struct {
	// Mode is ModeSync or ModeBatch. Default: ModeSync
	Mode Mode

	// BatchSize triggers a flush when this many logs are buffered.
	// Default: 100
	BatchSize int

	// FlushInterval flushes the buffer periodically. Default: 1 second
	FlushInterval time.Duration

	// MaxBuffered bounds the buffer while storage is failing.
	// Default: 10000
	MaxBuffered int

	// WriteTimeout bounds each storage write. Default: 5 seconds
	WriteTimeout time.Duration

	// Service identifies this service in audit metadata.
	Service audit.ServiceInfo

	// Retention maps compliance summaries to retention tiers.
	Retention audit.RetentionPolicy

	// Classifier derives compliance flags from intents.
	Classifier audit.Classifier
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:          ModeSync,
		BatchSize:     100,
		FlushInterval: time.Second,
		MaxBuffered:   10000,
		WriteTimeout:  5 * time.Second,
		Service:       audit.ServiceInfo{Name: "arbiter", Version: "dev"},
		Retention:     audit.DefaultRetentionPolicy(),
		Classifier:    audit.DefaultClassifier(),
	}
}

// Option customizes a Logger.
type Option func(*Logger)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithIDGenerator sets the log id generator.
func WithIDGenerator(newID func() string) Option {
	return func(l *Logger) { l.newID = newID }
}

// Stats are cumulative logger counters.
type Stats struct {
	Written  int64 `json:"written"`
	Flushes  int64 `json:"flushes"`
	Failures int64 `json:"failures"`
	Buffered int   `json:"buffered"`
}

// Logger builds, signs and persists decision logs.
type Logger struct {
	storage   audit.Storage
	protector *integrity.Protector
	config    *Config
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger

	// mu guards buffer and closed. flushMu serializes flushes and outcome
	// attachment so an outcome is never set on a log that is mid-write.
	mu      sync.Mutex
	flushMu sync.Mutex
	buffer  []*audit.DecisionLog
	closed  bool

	flushCh  chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	closeErr error

	written  atomic.Int64
	flushes  atomic.Int64
	failures atomic.Int64
}

// New creates a Logger. In batch mode a background goroutine flushes the
// buffer until Close is called.
func New(storage audit.Storage, protector *integrity.Protector, config *Config, opts ...Option) (*Logger, error) {
	if storage == nil {
		return nil, errors.New("logger: storage is required")
	}
	if protector == nil {
		return nil, errors.New("logger: integrity protector is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	applyDefaults(config)

	l := &Logger{
		storage:   storage,
		protector: protector,
		config:    config,
		now:       time.Now,
		newID:     newULID,
		logger:    slog.Default().With("component", "audit.logger"),
		flushCh:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if config.Mode == ModeBatch {
		l.wg.Add(1)
		go l.worker()
	}

	l.logger.Info("decision logger initialized",
		"mode", config.Mode,
		"batch_size", config.BatchSize,
		"flush_interval", config.FlushInterval,
		"encrypting", protector.Encrypting(),
	)
	return l, nil
}

func applyDefaults(c *Config) {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.MaxBuffered < c.BatchSize {
		c.MaxBuffered = d.MaxBuffered
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Retention.StandardYears == 0 {
		c.Retention = d.Retention
	}
	if c.Classifier.LargeTransactionThreshold == 0 {
		c.Classifier = d.Classifier
	}
	if c.Service.Name == "" {
		c.Service = d.Service
	}
}

// newULID returns a time-sortable id.
func newULID() string {
	return ulid.MustNew(ulid.Now(), ulid.DefaultEntropy()).String()
}

// Build assembles the audit record for a decision without persisting it.
// The timestamp is truncated to microseconds so it survives every storage
// backend unchanged.
func (l *Logger) Build(ctx context.Context, intent *decision.FinancialIntent, d *decision.PolicyDecision) *audit.DecisionLog {
	ts := l.now().UTC().Truncate(time.Microsecond)
	summary, flags := l.config.Classifier.Classify(intent)

	roles := append([]string(nil), intent.User.Roles...)
	return &audit.DecisionLog{
		ID:        l.newID(),
		Timestamp: ts,
		Intent:    *intent,
		Decision:  *d.Clone(),
		Audit: audit.Metadata{
			TraceID:            traceID(ctx, intent),
			SessionID:          sessionID(ctx, intent),
			UserID:             intent.User.ID,
			UserRoles:          roles,
			Service:            l.config.Service,
			ComplianceFlags:    flags,
			DataClassification: intent.Financial.Sensitivity,
			RetentionYears:     l.config.Retention.YearsFor(summary),
		},
		Compliance: summary,
		Partition:  audit.PartitionFor(ts),
	}
}

// sessionID prefers the intent's session, then one bound to ctx.
func sessionID(ctx context.Context, intent *decision.FinancialIntent) string {
	if intent.Request.SessionID != "" {
		return intent.Request.SessionID
	}
	return logging.GetSession(ctx)
}

// traceID prefers the active trace, then the request id.
func traceID(ctx context.Context, intent *decision.FinancialIntent) string {
	if id := tracing.TraceID(ctx); id != "" {
		return id
	}
	return intent.Request.RequestID
}

// Log builds a DecisionLog, signs and seals it, and persists it. In sync
// mode the write completes before Log returns. In batch mode the log is
// buffered and becomes durable on the next flush; Close reports a final
// flush failure. The returned log is the stored, protected form.
func (l *Logger) Log(ctx context.Context, intent *decision.FinancialIntent, d *decision.PolicyDecision) (*audit.DecisionLog, error) {
	log := l.Build(ctx, intent, d)
	if err := l.protector.Protect(log); err != nil {
		return nil, audit.NewPersistenceError("logger", "protect", err)
	}

	if l.config.Mode == ModeBatch {
		if err := l.enqueue(log); err != nil {
			return nil, err
		}
		return log, nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, l.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := l.storage.Store(writeCtx, log); err != nil {
		l.failures.Add(1)
		l.logger.Error("failed to store decision log",
			"log_id", log.ID,
			"decision", log.Decision.Decision,
			"error", err,
		)
		var perr *audit.PersistenceError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, audit.NewPersistenceError("logger", "store", err)
	}
	l.written.Add(1)

	if elapsed := time.Since(start); elapsed > l.config.WriteTimeout/2 {
		l.logger.Warn("slow decision log write",
			"log_id", log.ID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return log, nil
}

func (l *Logger) enqueue(log *audit.DecisionLog) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return audit.NewPersistenceError("logger", "enqueue", ErrClosed)
	}
	if len(l.buffer) >= l.config.MaxBuffered {
		l.mu.Unlock()
		l.logger.Error("decision log buffer full",
			"log_id", log.ID,
			"max_buffered", l.config.MaxBuffered,
		)
		return audit.NewPersistenceError("logger", "enqueue", ErrBufferFull)
	}
	l.buffer = append(l.buffer, log)
	full := len(l.buffer) >= l.config.BatchSize
	l.mu.Unlock()

	if full {
		select {
		case l.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

func (l *Logger) worker() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = l.Flush(context.Background())
		case <-l.flushCh:
			_ = l.Flush(context.Background())
		case <-l.done:
			l.closeErr = l.Flush(context.Background())
			return
		}
	}
}

// Flush writes every buffered log in one batch. Logs leave the buffer only
// once the batch is stored; on failure they stay queued ahead of newer
// logs and the error is returned.
func (l *Logger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	batch := append([]*audit.DecisionLog(nil), l.buffer...)
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, l.config.WriteTimeout)
	defer cancel()

	l.flushes.Add(1)
	if err := l.storage.StoreBatch(writeCtx, batch); err != nil {
		l.failures.Add(1)
		l.logger.Error("failed to flush decision logs",
			"batch_size", len(batch),
			"buffered", l.Stats().Buffered,
			"error", err,
		)
		return audit.NewPersistenceError("logger", "flush", err)
	}

	l.mu.Lock()
	l.buffer = l.buffer[len(batch):]
	l.mu.Unlock()

	l.written.Add(int64(len(batch)))
	l.logger.Debug("flushed decision logs", "count", len(batch))
	return nil
}

// AttachOutcome records the real-world outcome of a logged decision. A log
// that is still buffered gets the outcome before it is written.
func (l *Logger) AttachOutcome(ctx context.Context, id string, outcome *audit.Outcome) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	for _, log := range l.buffer {
		if log.ID == id {
			defer l.mu.Unlock()
			if log.Outcome != nil {
				return audit.ErrOutcomeAlreadySet
			}
			cp := *outcome
			log.Outcome = &cp
			return nil
		}
	}
	l.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, l.config.WriteTimeout)
	defer cancel()
	return l.storage.SetOutcome(writeCtx, id, outcome)
}

// Stats returns cumulative counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	buffered := len(l.buffer)
	l.mu.Unlock()

	return Stats{
		Written:  l.written.Load(),
		Flushes:  l.flushes.Load(),
		Failures: l.failures.Load(),
		Buffered: buffered,
	}
}

// Mode returns the configured write mode.
func (l *Logger) Mode() Mode {
	return l.config.Mode
}

// Close stops accepting logs and, in batch mode, performs a final flush.
// If the final flush fails the buffered logs are lost and a
// PersistenceError is returned.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.config.Mode != ModeBatch {
		return nil
	}

	close(l.done)
	l.wg.Wait()

	if l.closeErr != nil {
		l.logger.Error("final flush failed, decision logs were not persisted",
			"lost", l.Stats().Buffered,
			"error", l.closeErr,
		)
		return audit.NewPersistenceError("logger", "final_flush", l.closeErr)
	}
	l.logger.Info("decision logger shut down complete", "written", l.written.Load())
	return nil
}
