package syncer

import (
	"context"
	"fmt"
	"time"
)

// CacheOperation selects what a cache-only sync does.
type CacheOperation string

const (
	// OpRefresh invalidates then warms.
	OpRefresh CacheOperation = "refresh"
	// OpInvalidate deletes keys by namespace pattern, plus any specific keys
	// given.
	OpInvalidate CacheOperation = "invalidate"
	// OpWarm pre-loads common entries from storage.
	OpWarm CacheOperation = "warm"
	// OpClear issues a native namespace clear to the store.
	OpClear CacheOperation = "clear"
)

// defaultCacheNamespaces are the namespaces a cache sync touches when none
// are given.
var defaultCacheNamespaces = []string{"templates", "bccache", "responses"}

// namespacePatterns maps well-known namespaces to their key patterns. The
// synthetic "gather" namespace fans out to the compiled-artifact patterns.
var namespacePatterns = map[string][]string{
	"templates": {"template:*"},
	"bccache":   {"bccache:*"},
	"responses": {"response:*"},
	"gather":    {"routes:*", "templates:*", "middleware:*"},
}

// commonTemplates are warmed from storage by OpWarm and OpRefresh.
var commonTemplates = []string{
	"base.html",
	"layout.html",
	"index.html",
	"404.html",
	"500.html",
	"login.html",
	"dashboard.html",
}

// CacheSyncOptions configures a cache-only sync.
type CacheSyncOptions struct {
	// Operation defaults to OpRefresh.
	Operation CacheOperation
	// Namespaces defaults to templates, bccache, responses.
	Namespaces []string
	// Keys, when given, are invalidated individually in addition to the
	// namespace patterns.
	Keys []string
	// TemplateBucket is the bucket warmed templates are read from
	// (default "templates").
	TemplateBucket string
	// DryRun reports what would change without touching the store.
	DryRun bool
}

// SyncCache runs a cache-only sync over a set of namespaces. Invalidation of
// the gather namespace also notifies the middleware-stack collaborator so
// compiled stacks rebuild. Failures accumulate; SyncCache never fails
// outright.
func (e *Engine) SyncCache(ctx context.Context, opts CacheSyncOptions) *CacheSyncResult {
	if opts.Operation == "" {
		opts.Operation = OpRefresh
	}
	if len(opts.Namespaces) == 0 {
		opts.Namespaces = defaultCacheNamespaces
	}
	if opts.TemplateBucket == "" {
		opts.TemplateBucket = "templates"
	}

	result := &CacheSyncResult{}
	if e.cache == nil {
		result.Errors = append(result.Errors, fmt.Errorf("cache store not available"))
		return result
	}

	e.log.Debug("cache sync starting", "operation", opts.Operation, "namespaces", opts.Namespaces)

	switch opts.Operation {
	case OpRefresh:
		e.invalidateNamespaces(ctx, opts, result)
		e.warmNamespaces(ctx, opts, result)
	case OpInvalidate:
		e.invalidateNamespaces(ctx, opts, result)
	case OpWarm:
		e.warmNamespaces(ctx, opts, result)
	case OpClear:
		e.clearNamespaces(ctx, opts, result)
	default:
		result.Errors = append(result.Errors, fmt.Errorf("unknown cache operation %q", opts.Operation))
	}

	e.log.Debug("cache sync completed",
		"invalidated", len(result.InvalidatedKeys),
		"warmed", len(result.WarmedKeys),
		"errors", len(result.Errors))
	return result
}

func (e *Engine) invalidateNamespaces(ctx context.Context, opts CacheSyncOptions, result *CacheSyncResult) {
	if opts.DryRun {
		result.InvalidatedKeys = append(result.InvalidatedKeys, "DRY_RUN_INVALIDATION")
		return
	}

	for _, key := range opts.Keys {
		if err := e.cache.Delete(ctx, key); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete %q: %w", key, err))
			continue
		}
		result.InvalidatedKeys = append(result.InvalidatedKeys, key)
	}

	for _, namespace := range opts.Namespaces {
		patterns, ok := namespacePatterns[namespace]
		if !ok {
			patterns = []string{namespace + ":*"}
		}
		for _, pattern := range patterns {
			deleted, err := e.cache.DeletePattern(ctx, pattern)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete pattern %q: %w", pattern, err))
				continue
			}
			if len(deleted) == 0 {
				result.InvalidatedKeys = append(result.InvalidatedKeys, pattern)
			} else {
				result.InvalidatedKeys = append(result.InvalidatedKeys, deleted...)
			}
		}
		if namespace == "gather" && e.stack != nil {
			e.stack.InvalidatePattern("gather:*")
		}
	}
}

func (e *Engine) warmNamespaces(ctx context.Context, opts CacheSyncOptions, result *CacheSyncResult) {
	if opts.DryRun {
		result.WarmedKeys = append(result.WarmedKeys, "DRY_RUN_WARMING")
		return
	}

	for _, namespace := range opts.Namespaces {
		if namespace != "templates" {
			continue
		}
		e.warmTemplates(ctx, opts.TemplateBucket, result)
	}
}

// warmTemplates reads the common template set from storage and writes each
// into the cache. Missing templates are skipped silently.
func (e *Engine) warmTemplates(ctx context.Context, bucketName string, result *CacheSyncResult) {
	if e.storage == nil {
		e.log.Debug("storage not available for template warming")
		return
	}
	bucket := e.storage.Bucket(bucketName)

	for _, templatePath := range commonTemplates {
		exists, err := bucket.Exists(ctx, templatePath)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("warm %q: %w", templatePath, err))
			continue
		}
		if !exists {
			continue
		}
		content, err := bucket.Read(ctx, templatePath)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("warm %q: %w", templatePath, err))
			continue
		}
		key := "template:" + templatePath
		if err := e.cache.Set(ctx, key, content, 24*time.Hour); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("warm %q: %w", key, err))
			continue
		}
		result.WarmedKeys = append(result.WarmedKeys, key)
		e.log.Debug("warmed template cache", "path", templatePath)
	}
}

func (e *Engine) clearNamespaces(ctx context.Context, opts CacheSyncOptions, result *CacheSyncResult) {
	if opts.DryRun {
		result.ClearedNamespaces = append(result.ClearedNamespaces, opts.Namespaces...)
		return
	}
	for _, namespace := range opts.Namespaces {
		if err := e.cache.Clear(ctx, namespace); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("clear %q: %w", namespace, err))
			continue
		}
		result.ClearedNamespaces = append(result.ClearedNamespaces, namespace)
	}
}

// NamespaceStats summarises one namespace for CacheStats.
type NamespaceStats struct {
	KeyCount   int
	SampleKeys []string
}

// CacheStats collects the key count and up to five sample keys for each of
// the given namespaces (defaults: templates, bccache, responses, gather).
func (e *Engine) CacheStats(ctx context.Context, namespaces []string) (map[string]NamespaceStats, error) {
	if e.cache == nil {
		return nil, fmt.Errorf("cache store not available")
	}
	if len(namespaces) == 0 {
		namespaces = append(append([]string{}, defaultCacheNamespaces...), "gather")
	}

	stats := make(map[string]NamespaceStats, len(namespaces))
	for _, namespace := range namespaces {
		keys, err := e.cache.Keys(ctx, namespace+":*")
		if err != nil {
			return nil, fmt.Errorf("keys for %q: %w", namespace, err)
		}
		sample := keys
		if len(sample) > 5 {
			sample = sample[:5]
		}
		stats[namespace] = NamespaceStats{KeyCount: len(keys), SampleKeys: sample}
	}
	return stats, nil
}
