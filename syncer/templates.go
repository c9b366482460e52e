package syncer

import (
	"context"
)

// TemplateSyncOptions configures a template sync run.
type TemplateSyncOptions struct {
	// Root is the local template tree (default "templates").
	Root string
	// Patterns are the include globs (default *.html, *.tmpl, *.txt).
	Patterns []string
	// Excludes extend the default exclude patterns.
	Excludes []string
	// Bucket is the storage bucket name (default "templates").
	Bucket string
	// Strategy defaults to DefaultStrategy.
	Strategy *Strategy
}

func (o *TemplateSyncOptions) withDefaults() {
	if o.Root == "" {
		o.Root = "templates"
	}
	if len(o.Patterns) == 0 {
		o.Patterns = []string{"*.html", "*.tmpl", "*.txt"}
	}
	if o.Bucket == "" {
		o.Bucket = "templates"
	}
}

// SyncTemplates synchronises the local template tree with the templates
// bucket. Every successful sync purges the rendered-template and bytecode
// cache entries for the file so stale renders cannot be served. Failures
// accumulate in the result; SyncTemplates never fails outright.
func (e *Engine) SyncTemplates(ctx context.Context, opts TemplateSyncOptions) *TemplateResult {
	opts.withDefaults()
	strategy := DefaultStrategy()
	if opts.Strategy != nil {
		strategy = opts.Strategy.withDefaults()
	}

	result := &TemplateResult{}
	bucket := e.storage.Bucket(opts.Bucket)

	jobs, err := e.discover(ctx, opts.Root, bucket, opts.Patterns, opts.Excludes)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	e.log.Debug("discovered template files", "count", len(jobs))

	hooks := syncHooks{
		afterSync: func(ctx context.Context, job fileJob, _ []byte, out *outcome) {
			e.invalidateTemplateCache(ctx, job.relPath, out)
		},
	}

	e.run(ctx, strategy, bucket, jobs, hooks, &result.Result, func(out *outcome) {
		result.CacheInvalidated = append(result.CacheInvalidated, out.cacheInvalidated...)
		result.BytecodeCleared = append(result.BytecodeCleared, out.bytecodeCleared...)
	})

	e.log.Debug("template sync completed",
		"synced", len(result.SyncedItems),
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors))
	return result
}

// invalidateTemplateCache purges the rendered entry, the bytecode entry and
// their variant keys for a template path. Cache failures are logged only.
func (e *Engine) invalidateTemplateCache(ctx context.Context, path string, out *outcome) {
	if e.cache == nil {
		return
	}

	templateKey := "template:" + path
	if err := e.cache.Delete(ctx, templateKey); err != nil {
		e.log.Warn("failed to invalidate template cache", "key", templateKey, "error", err)
	} else {
		out.cacheInvalidated = append(out.cacheInvalidated, templateKey)
	}

	bytecodeKey := "bccache:" + path
	if err := e.cache.Delete(ctx, bytecodeKey); err != nil {
		e.log.Warn("failed to invalidate bytecode cache", "key", bytecodeKey, "error", err)
	} else {
		out.bytecodeCleared = append(out.bytecodeCleared, bytecodeKey)
	}

	for _, pattern := range []string{"template:*:" + path, "bccache:*:" + path} {
		if _, err := e.cache.DeletePattern(ctx, pattern); err != nil {
			e.log.Warn("failed to invalidate variant cache keys", "pattern", pattern, "error", err)
		}
	}
}
