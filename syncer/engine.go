package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/gobwas/glob"
	"golang.org/x/sync/semaphore"

	"github.com/corestack/corestack/cache"
	"github.com/corestack/corestack/storage"
)

// defaultExcludePatterns filters transient and hidden files out of discovery.
var defaultExcludePatterns = []string{"*.tmp", "*.log", ".*", "*.cache"}

// ConfigReloader is asked to reload configuration after a successful
// settings sync, with the affected adapter names.
type ConfigReloader interface {
	Reload(ctx context.Context, adapters []string) error
}

// StackInvalidator is notified when a cache invalidation touches the gather
// namespace so compiled middleware stacks can rebuild.
type StackInvalidator interface {
	InvalidatePattern(pattern string)
}

// Engine synchronises files between a local tree and an object-store bucket
// and keeps the cache coherent with what it writes.
type Engine struct {
	storage storage.Store
	cache   cache.Store
	config  ConfigReloader
	stack   StackInvalidator
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithConfigReloader installs the configuration collaborator notified after
// settings syncs.
func WithConfigReloader(c ConfigReloader) Option {
	return func(e *Engine) error {
		e.config = c
		return nil
	}
}

// WithStackInvalidator installs the middleware-stack collaborator notified
// on gather-namespace invalidations.
func WithStackInvalidator(s StackInvalidator) Option {
	return func(e *Engine) error {
		e.stack = s
		return nil
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// New returns an Engine over the given storage and cache collaborators.
func New(store storage.Store, cacheStore cache.Store, opts ...Option) *Engine {
	e := &Engine{storage: store, cache: cacheStore}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			slog.Default().Error("failed to apply syncer option", "error", err)
		}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// fileJob is one discovered file, identified by its local path and its
// remote key (the path relative to the sync root, slash-separated).
type fileJob struct {
	localPath string
	relPath   string
}

// syncHooks customises the per-file state machine for typed file classes.
type syncHooks struct {
	// validateLocal checks local content before it participates in a sync.
	// A failure skips the file with an error.
	validateLocal func(state fileState) error
	// validateResolved checks resolved conflict content before any write.
	// A failure aborts the resolution.
	validateResolved func(content []byte) error
	// contentType supplies write metadata for pushes.
	contentType func(relPath string) string
	// afterSync runs after a non-dry-run write for cache coherence.
	afterSync func(ctx context.Context, job fileJob, content []byte, out *outcome)
}

// discover walks the local root and lists the remote bucket, yielding the
// union of files matching the include patterns, with excludes applied.
func (e *Engine) discover(ctx context.Context, root string, bucket storage.Bucket, patterns []string, excludes []string) ([]fileJob, error) {
	includes, err := compileGlobs(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	excludeGlobs, err := compileGlobs(append(append([]string{}, defaultExcludePatterns...), excludes...))
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}

	seen := map[string]bool{}
	var jobs []fileJob
	add := func(rel string) {
		rel = filepath.ToSlash(rel)
		if seen[rel] {
			return
		}
		base := rel[strings.LastIndex(rel, "/")+1:]
		if !matchesAny(includes, base) || matchesAny(excludeGlobs, base) {
			return
		}
		seen[rel] = true
		jobs = append(jobs, fileJob{localPath: filepath.Join(root, filepath.FromSlash(rel)), relPath: rel})
	}

	if _, err := os.Stat(root); err == nil {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if name := d.Name(); path != root && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			add(rel)
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walk %q: %w", root, walkErr)
		}
	}

	remote, err := bucket.List(ctx, "")
	if err != nil {
		e.log.Warn("remote listing failed, discovery limited to local tree", "error", err)
	}
	for _, key := range remote {
		add(key)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].relPath < jobs[j].relPath })
	return jobs, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// run executes the per-file sync over all jobs under the strategy's
// parallelism cap, retry policy and global timeout, accumulating into res.
func (e *Engine) run(ctx context.Context, strategy Strategy, bucket storage.Bucket, jobs []fileJob, hooks syncHooks, res *Result, mergeExtra func(*outcome)) {
	ctx, cancel := context.WithTimeout(ctx, strategy.Timeout)
	defer cancel()

	sem := semaphore.NewWeighted(int64(strategy.MaxConcurrent))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	policy := retrypolicy.NewBuilder[*outcome]().
		WithMaxRetries(strategy.RetryAttempts).
		WithDelayFunc(func(exec failsafe.ExecutionAttempt[*outcome]) time.Duration {
			return strategy.RetryDelay * time.Duration(exec.Attempts())
		}).
		Build()

	for _, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(job fileJob) {
			defer wg.Done()
			defer sem.Release(1)

			out, err := failsafe.With(policy).WithContext(ctx).Get(func() (*outcome, error) {
				return e.syncOne(ctx, strategy, bucket, job, hooks)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("sync %q: %w", job.relPath, err))
				return
			}
			res.merge(out)
			if mergeExtra != nil {
				mergeExtra(out)
			}
		}(job)
	}
	wg.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		mu.Lock()
		res.Errors = append(res.Errors, fmt.Errorf("%w after %s", ErrSyncTimeout, strategy.Timeout))
		mu.Unlock()
	}
}

// syncOne runs the state machine for a single file:
//
//	DISCOVERED → SKIP | PULL | PUSH | CONFLICT → WRITE → DONE
//
// Errors returned here are transient I/O failures eligible for retry; every
// terminal decision is recorded in the outcome.
func (e *Engine) syncOne(ctx context.Context, strategy Strategy, bucket storage.Bucket, job fileJob, hooks syncHooks) (*outcome, error) {
	out := &outcome{}

	local, err := localState(job.localPath)
	if err != nil {
		return nil, err
	}
	remote, err := remoteState(ctx, bucket, job.relPath)
	if err != nil {
		return nil, err
	}

	if !local.exists && !remote.exists {
		out.skipped = append(out.skipped, job.relPath+" (both_missing)")
		return out, nil
	}

	if hooks.validateLocal != nil && local.exists {
		if err := hooks.validateLocal(local); err != nil {
			out.errs = append(out.errs, fmt.Errorf("%s: %w", job.relPath, err))
			out.skipped = append(out.skipped, job.relPath+" (validation_failed)")
			return out, nil
		}
	}

	switch {
	case remote.exists && !local.exists:
		if strategy.Direction != Pull && strategy.Direction != Bidirectional {
			out.skipped = append(out.skipped, job.relPath+" (direction)")
			return out, nil
		}
		return out, e.pull(ctx, strategy, job, local, remote, hooks, out)

	case local.exists && !remote.exists:
		if strategy.Direction != Push && strategy.Direction != Bidirectional {
			out.skipped = append(out.skipped, job.relPath+" (direction)")
			return out, nil
		}
		return out, e.push(ctx, strategy, bucket, job, local, hooks, out)

	case local.hash == remote.hash:
		out.skipped = append(out.skipped, job.relPath+" (content_identical)")
		return out, nil

	default:
		return out, e.resolveConflict(ctx, strategy, bucket, job, local, remote, hooks, out)
	}
}

func (e *Engine) pull(ctx context.Context, strategy Strategy, job fileJob, local, remote fileState, hooks syncHooks, out *outcome) error {
	if strategy.DryRun {
		out.synced = append(out.synced, "PULL(dry-run): "+job.relPath)
		return nil
	}
	if hooks.validateResolved != nil {
		if err := hooks.validateResolved(remote.content); err != nil {
			out.errs = append(out.errs, fmt.Errorf("%s: %w", job.relPath, err))
			out.skipped = append(out.skipped, job.relPath+" (validation_failed)")
			return nil
		}
	}
	if local.exists && strategy.BackupOnConflict {
		backupPath, err := createBackup(job.localPath, backupSuffix(strategy.Conflict))
		if err != nil {
			return err
		}
		out.backedUp = append(out.backedUp, backupPath)
	}
	if err := writeLocal(job.localPath, remote.content); err != nil {
		return err
	}
	out.synced = append(out.synced, "PULL: "+job.relPath)
	e.log.Debug("pulled file", "path", job.relPath)
	if hooks.afterSync != nil {
		hooks.afterSync(ctx, job, remote.content, out)
	}
	return nil
}

func (e *Engine) push(ctx context.Context, strategy Strategy, bucket storage.Bucket, job fileJob, local fileState, hooks syncHooks, out *outcome) error {
	if strategy.DryRun {
		out.synced = append(out.synced, "PUSH(dry-run): "+job.relPath)
		return nil
	}
	var opts *storage.WriteOptions
	if hooks.contentType != nil {
		if ct := hooks.contentType(job.relPath); ct != "" {
			opts = &storage.WriteOptions{ContentType: ct}
		}
	}
	if err := bucket.Write(ctx, job.relPath, local.content, opts); err != nil {
		return err
	}
	out.synced = append(out.synced, "PUSH: "+job.relPath)
	e.log.Debug("pushed file", "path", job.relPath)
	if hooks.afterSync != nil {
		hooks.afterSync(ctx, job, local.content, out)
	}
	return nil
}

// resolveConflict applies the strategy to a file whose sides diverged.
func (e *Engine) resolveConflict(ctx context.Context, strategy Strategy, bucket storage.Bucket, job fileJob, local, remote fileState, hooks syncHooks, out *outcome) error {
	if strategy.Conflict == Manual {
		out.conflicts = append(out.conflicts, Conflict{
			Path:        job.relPath,
			LocalMtime:  local.mtime,
			RemoteMtime: remote.mtime,
			Reason:      "manual_resolution_required",
		})
		return nil
	}

	content, reason, remoteWon := resolveContent(strategy.Conflict, local, remote)

	if strategy.DryRun {
		out.synced = append(out.synced, fmt.Sprintf("CONFLICT(dry-run): %s - %s", job.relPath, reason))
		return nil
	}

	if hooks.validateResolved != nil {
		if err := hooks.validateResolved(content); err != nil {
			out.errs = append(out.errs, fmt.Errorf("%s: %w", job.relPath, err))
			out.conflicts = append(out.conflicts, Conflict{
				Path:        job.relPath,
				LocalMtime:  local.mtime,
				RemoteMtime: remote.mtime,
				Reason:      "resolution_failed",
			})
			return nil
		}
	}

	if strategy.BackupOnConflict || strategy.Conflict == BackupBoth {
		backupPath, err := createBackup(job.localPath, backupSuffix(strategy.Conflict))
		if err != nil {
			return err
		}
		out.backedUp = append(out.backedUp, backupPath)
	}

	if remoteWon {
		if err := writeLocal(job.localPath, content); err != nil {
			return err
		}
		out.synced = append(out.synced, fmt.Sprintf("CONFLICT->REMOTE: %s - %s", job.relPath, reason))
	} else {
		var opts *storage.WriteOptions
		if hooks.contentType != nil {
			if ct := hooks.contentType(job.relPath); ct != "" {
				opts = &storage.WriteOptions{ContentType: ct}
			}
		}
		if err := bucket.Write(ctx, job.relPath, content, opts); err != nil {
			return err
		}
		out.synced = append(out.synced, fmt.Sprintf("CONFLICT->LOCAL: %s - %s", job.relPath, reason))
	}
	e.log.Debug("resolved conflict", "path", job.relPath, "reason", reason)

	if hooks.afterSync != nil {
		hooks.afterSync(ctx, job, content, out)
	}
	return nil
}

// resolveContent picks the winning content under the strategy. The returned
// reason describes the decision; remoteWon selects the write target.
func resolveContent(strategy ConflictStrategy, local, remote fileState) (content []byte, reason string, remoteWon bool) {
	switch strategy {
	case LocalWins:
		return local.content, "local_wins", false
	case NewestWins:
		if local.mtime > 0 && remote.mtime > 0 {
			if remote.mtime > local.mtime {
				return remote.content, fmt.Sprintf("remote_newer(%d > %d)", remote.mtime, local.mtime), true
			}
			if local.mtime > remote.mtime {
				return local.content, fmt.Sprintf("local_newer(%d > %d)", local.mtime, remote.mtime), false
			}
		}
		return remote.content, "newest_wins_fallback_remote", true
	case BackupBoth:
		return remote.content, "backup_both", true
	default: // RemoteWins
		return remote.content, "remote_wins", true
	}
}

func writeLocal(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
