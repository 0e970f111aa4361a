package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// Policy defines the retention tiers.
	Policy audit.RetentionPolicy

	// Schedule is a cron expression for automatic purges.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables scheduling.
	Schedule string

	// ArchiveBeforeDelete writes expiring logs to ArchivePath first.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory for archives.
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		Policy:      audit.DefaultRetentionPolicy(),
		Schedule:    "0 3 * * *",
		ArchivePath: "data/archives/",
	}
}

// TierResult reports the purge of one retention tier.
type TierResult struct {
	RetentionYears int       `json:"retention_years"`
	Cutoff         time.Time `json:"cutoff"`
	Deleted        int64     `json:"deleted"`
	Archived       int       `json:"archived"`
	ArchiveFile    string    `json:"archive_file,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Result reports a purge run.
type Result struct {
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Tiers        []TierResult `json:"tiers"`
	TotalDeleted int64        `json:"total_deleted"`
}

// Hook observes completed purge runs.
type Hook func(ctx context.Context, result *Result, err error)

// Pruner removes decision logs whose retention window has elapsed. Each
// log is purged by the tier recorded on it when it was written, never by
// raw age alone.
type Pruner struct {
	storage   audit.Storage
	config    *Config
	now       func() time.Time
	logger    *slog.Logger
	scheduler *Scheduler

	mu    sync.Mutex
	hooks []Hook
}

// NewPruner creates a new retention pruner.
func NewPruner(storage audit.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Policy.StandardYears == 0 {
		config.Policy = audit.DefaultRetentionPolicy()
	}

	p := &Pruner{
		storage: storage,
		config:  config,
		now:     time.Now,
		logger:  slog.Default().With("component", "audit.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// SetClock sets the time source used to compute cutoffs.
func (p *Pruner) SetClock(now func() time.Time) {
	p.now = now
}

// OnComplete registers a hook called after every purge run.
func (p *Pruner) OnComplete(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, h)
}

// Purge purges every tier known to the policy or present in storage. Each
// tier is removed in one storage transaction. A failing tier does not stop
// the others; the errors are joined.
func (p *Pruner) Purge(ctx context.Context) (*Result, error) {
	now := p.now().UTC()
	result := &Result{StartedAt: now}

	tiers, err := p.tiers(ctx)
	if err != nil {
		p.finish(ctx, result, err)
		return result, err
	}

	var errs []error
	for _, years := range tiers {
		tr := TierResult{RetentionYears: years, Cutoff: audit.Cutoff(now, years)}

		if p.config.ArchiveBeforeDelete {
			file, n, err := p.archive(ctx, years, tr.Cutoff, now)
			if err != nil {
				tr.Error = err.Error()
				result.Tiers = append(result.Tiers, tr)
				errs = append(errs, audit.NewRetentionError(years, err))
				continue
			}
			tr.ArchiveFile, tr.Archived = file, n
		}

		deleted, err := p.storage.Purge(ctx, years, tr.Cutoff)
		if err != nil {
			tr.Error = err.Error()
			errs = append(errs, audit.NewRetentionError(years, err))
		}
		tr.Deleted = deleted
		result.TotalDeleted += deleted
		result.Tiers = append(result.Tiers, tr)

		p.logger.Info("purged retention tier",
			"retention_years", years,
			"cutoff", tr.Cutoff,
			"deleted_count", deleted,
		)
	}

	err = errors.Join(errs...)
	p.finish(ctx, result, err)
	return result, err
}

func (p *Pruner) finish(ctx context.Context, result *Result, err error) {
	result.FinishedAt = p.now().UTC()
	if err != nil {
		p.logger.Error("retention purge failed", "error", err)
	} else {
		p.logger.Info("retention purge completed", "total_deleted", result.TotalDeleted)
	}

	p.mu.Lock()
	hooks := append([]Hook(nil), p.hooks...)
	p.mu.Unlock()
	for _, h := range hooks {
		h(ctx, result, err)
	}
}

// tiers returns the union of configured and stored tiers in ascending
// order.
func (p *Pruner) tiers(ctx context.Context) ([]int, error) {
	stored, err := p.storage.Tiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retention tiers: %w", err)
	}
	seen := map[int]bool{}
	var out []int
	for _, y := range append(p.config.Policy.Tiers(), stored...) {
		if y > 0 && !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out, nil
}

// archive exports the logs a tier purge is about to remove. Logs are
// archived in their stored, sealed form.
func (p *Pruner) archive(ctx context.Context, years int, cutoff, now time.Time) (string, int, error) {
	q := &audit.Query{RetentionYears: years, End: cutoff.Add(-time.Nanosecond), SortOrder: "asc"}
	count, err := p.storage.Count(ctx, q)
	if err != nil {
		return "", 0, fmt.Errorf("count logs for archiving: %w", err)
	}
	if count == 0 {
		return "", 0, nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create archive directory: %w", err)
	}
	file := filepath.Join(p.config.ArchivePath,
		fmt.Sprintf("decision-logs-r%d-%s.json", years, now.Format("2006-01-02-150405")))
	f, err := os.Create(file)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	logs, errCh, err := p.storage.QueryStream(ctx, q)
	if err != nil {
		return "", 0, fmt.Errorf("query logs for archiving: %w", err)
	}
	if err := export.NewJSONExporter(false).ExportStream(ctx, logs, f); err != nil {
		return "", 0, fmt.Errorf("failed to export logs to archive: %w", err)
	}
	if err := <-errCh; err != nil {
		return "", 0, fmt.Errorf("query logs for archiving: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", 0, fmt.Errorf("sync archive: %w", err)
	}

	p.logger.Info("decision logs archived",
		"archive_file", file,
		"retention_years", years,
		"log_count", count,
	)
	return file, int(count), nil
}

// Start starts the automatic purge scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic purge scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPurge returns the time of the next scheduled purge.
func (p *Pruner) NextPurge() *time.Time {
	return p.scheduler.NextRun()
}
