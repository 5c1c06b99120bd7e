// Package retention prunes aged reel-media captures on a cron schedule.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"igvault/pkg/config"
	"igvault/pkg/logger"
	"igvault/pkg/merge"
	"igvault/pkg/state"
)

var (
	storedEff   *config.EffectiveConfigResult
	storedMerge *merge.Store
)

// SetStore registers the merge store retention runs against.
func SetStore(s *merge.Store) { storedMerge = s }

// SetEffectiveConfig stores the effective config so tests (or admin triggers)
// can invoke retention runs on-demand.
func SetEffectiveConfig(eff config.EffectiveConfigResult) {
	storedEff = &eff
}

// RunImmediate triggers a single retention run using the stored effective
// config. Returns an error if no effective config was registered.
func RunImmediate() error {
	if storedEff == nil {
		return fmt.Errorf("no effective config registered for retention run")
	}
	if state.PathsVar.Retention == "" {
		return fmt.Errorf("state paths not initialized")
	}
	return runOnce(context.Background(), *storedEff, state.PathsVar.Retention)
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	ret := eff.Config.Retention
	SetEffectiveConfig(eff)

	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if ret.MaxAge.Duration() <= 0 {
		return nil, fmt.Errorf("retention enabled but max_age is not set")
	}

	// Lock and last-run artifacts live in a stable folder under the DB
	// path: <DBPath>/state/retention.
	retentionPath := state.PathsVar.Retention
	if err := os.MkdirAll(retentionPath, 0o700); err != nil {
		logger.Error("retention_path_create_failed", "path", retentionPath, "error", err)
		return nil, err
	}

	// map empty cron to default daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_age", ret.MaxAge.Duration().String(), "path", retentionPath)
	ctx2, cancel := context.WithCancel(ctx)

	go runScheduler(ctx2, eff, retentionPath, cronExpr)

	logger.Info("retention_scheduler_started", "path", retentionPath)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time. This yields sharp scheduling and
// supports full cron syntax.
func runScheduler(ctx context.Context, eff config.EffectiveConfigResult, retentionPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}

		select {
		case <-time.After(wait):
			if err := runOnce(ctx, eff, retentionPath); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runArtifact is the machine-readable record of the last retention run.
type runArtifact struct {
	Time    string `json:"time"`
	Cutoff  string `json:"cutoff"`
	Pruned  int    `json:"pruned"`
	Elapsed string `json:"elapsed"`
}

// runOnce prunes reel-media entries captured before now-MaxAge and records
// a last-run artifact under the retention state folder.
func runOnce(ctx context.Context, eff config.EffectiveConfigResult, retentionPath string) error {
	if storedMerge == nil {
		return fmt.Errorf("no merge store registered for retention")
	}
	maxAge := eff.Config.Retention.MaxAge.Duration()
	if maxAge <= 0 {
		return fmt.Errorf("retention max_age not set")
	}

	start := time.Now()
	cutoff := start.Add(-maxAge).UTC()
	pruned, err := storedMerge.PruneReelsMedia(cutoff)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	logger.Info("retention_run_complete", "cutoff", cutoff.Format(time.RFC3339), "pruned", pruned)

	art := runArtifact{
		Time:    start.UTC().Format(time.RFC3339),
		Cutoff:  cutoff.Format(time.RFC3339),
		Pruned:  pruned,
		Elapsed: time.Since(start).String(),
	}
	return writeArtifact(retentionPath, art)
}

// writeArtifact replaces last-run.json atomically via a temp file rename.
func writeArtifact(dir string, art runArtifact) error {
	tmp, err := os.CreateTemp(dir, ".run-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(art); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return err
	}
	tmp.Sync()
	tmp.Close()
	dst := filepath.Join(dir, "last-run.json")
	if err := os.Rename(name, dst); err != nil {
		_ = os.Remove(name)
		return err
	}
	_ = os.Chmod(dst, 0o600)
	return nil
}
