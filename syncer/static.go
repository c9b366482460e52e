package syncer

import (
	"context"
	"mime"
	"path"
	"time"
)

// cacheableExtensions are the text-like static asset classes written into
// the cache after a successful sync.
var cacheableExtensions = map[string]bool{
	".css": true,
	".js":  true,
	".md":  true,
	".txt": true,
}

// nonCacheableExtensions are binary asset classes that are never cached and
// are stored with a detected MIME type only.
var nonCacheableExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".webp": true, ".avif": true,
	".mp4": true, ".mov": true, ".mp3": true, ".wav": true,
	".pdf": true, ".zip": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
}

const staticCacheTTL = 24 * time.Hour

// StaticSyncOptions configures a static asset sync run.
type StaticSyncOptions struct {
	// Root is the local static tree (default "static").
	Root string
	// Patterns are the include globs (default: every file).
	Patterns []string
	// Excludes extend the default exclude patterns.
	Excludes []string
	// Bucket is the storage bucket name (default "static").
	Bucket string
	// Strategy defaults to DefaultStrategy.
	Strategy *Strategy
}

func (o *StaticSyncOptions) withDefaults() {
	if o.Root == "" {
		o.Root = "static"
	}
	if len(o.Patterns) == 0 {
		o.Patterns = []string{"*"}
	}
	if o.Bucket == "" {
		o.Bucket = "static"
	}
}

// SyncStatic synchronises static assets with the static bucket. Synced
// text-like assets are additionally written into the cache under
// "static:<path>" with a one-day TTL; binary assets are never cached and
// carry their detected MIME type as write metadata.
func (e *Engine) SyncStatic(ctx context.Context, opts StaticSyncOptions) *StaticResult {
	opts.withDefaults()
	strategy := DefaultStrategy()
	if opts.Strategy != nil {
		strategy = opts.Strategy.withDefaults()
	}

	result := &StaticResult{MimeTypes: map[string]string{}}
	bucket := e.storage.Bucket(opts.Bucket)

	jobs, err := e.discover(ctx, opts.Root, bucket, opts.Patterns, opts.Excludes)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	e.log.Debug("discovered static files", "count", len(jobs))

	hooks := syncHooks{
		contentType: detectMimeType,
		afterSync: func(ctx context.Context, job fileJob, content []byte, out *outcome) {
			out.mimeType = detectMimeType(job.relPath)
			if isCacheable(job.relPath) {
				out.cacheableAsset = job.relPath
				e.cacheStaticAsset(ctx, job.relPath, content)
			} else {
				out.nonCacheableAsset = job.relPath
			}
		},
	}

	e.run(ctx, strategy, bucket, jobs, hooks, &result.Result, func(out *outcome) {
		if out.cacheableAsset != "" {
			result.CacheableAssets = append(result.CacheableAssets, out.cacheableAsset)
			result.MimeTypes[out.cacheableAsset] = out.mimeType
		}
		if out.nonCacheableAsset != "" {
			result.NonCacheableAssets = append(result.NonCacheableAssets, out.nonCacheableAsset)
			result.MimeTypes[out.nonCacheableAsset] = out.mimeType
		}
	})

	e.log.Debug("static sync completed",
		"synced", len(result.SyncedItems),
		"cacheable", len(result.CacheableAssets),
		"errors", len(result.Errors))
	return result
}

func (e *Engine) cacheStaticAsset(ctx context.Context, relPath string, content []byte) {
	if e.cache == nil {
		return
	}
	key := "static:" + relPath
	if err := e.cache.Set(ctx, key, content, staticCacheTTL); err != nil {
		e.log.Warn("failed to cache static asset", "key", key, "error", err)
	}
}

func isCacheable(relPath string) bool {
	return cacheableExtensions[path.Ext(relPath)]
}

func detectMimeType(relPath string) string {
	if mt := mime.TypeByExtension(path.Ext(relPath)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
