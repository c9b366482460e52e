package syncer

// Conflict records one file whose sides diverged and could not, or was not
// allowed to, be resolved automatically.
type Conflict struct {
	Path        string
	LocalMtime  int64
	RemoteMtime int64
	Reason      string
}

// Result accumulates the outcome of a sync run.
type Result struct {
	SyncedItems []string
	Conflicts   []Conflict
	Errors      []error
	Skipped     []string
	BackedUp    []string
}

// TotalProcessed is the number of files that reached a terminal state.
func (r *Result) TotalProcessed() int {
	return len(r.SyncedItems) + len(r.Conflicts) + len(r.Errors) + len(r.Skipped)
}

// SuccessCount is the number of synced files.
func (r *Result) SuccessCount() int { return len(r.SyncedItems) }

// HasConflicts reports whether the run recorded conflicts.
func (r *Result) HasConflicts() bool { return len(r.Conflicts) > 0 }

// HasErrors reports whether the run recorded errors.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// IsSuccess reports a clean run: no errors, no conflicts.
func (r *Result) IsSuccess() bool { return !r.HasErrors() && !r.HasConflicts() }

func (r *Result) merge(o *outcome) {
	r.SyncedItems = append(r.SyncedItems, o.synced...)
	r.Conflicts = append(r.Conflicts, o.conflicts...)
	r.Errors = append(r.Errors, o.errs...)
	r.Skipped = append(r.Skipped, o.skipped...)
	r.BackedUp = append(r.BackedUp, o.backedUp...)
}

// TemplateResult is the outcome of a template sync run.
type TemplateResult struct {
	Result
	// CacheInvalidated lists the rendered-template cache keys purged after
	// successful syncs.
	CacheInvalidated []string
	// BytecodeCleared lists the bytecode cache keys purged after successful
	// syncs.
	BytecodeCleared []string
}

// SettingsResult is the outcome of a settings sync run.
type SettingsResult struct {
	Result
	// AdaptersAffected lists the adapter names (file stems) whose settings
	// were synced.
	AdaptersAffected []string
	// ConfigReloaded lists the adapters for which a configuration reload was
	// requested.
	ConfigReloaded []string
}

// StaticResult is the outcome of a static asset sync run.
type StaticResult struct {
	Result
	// CacheableAssets lists synced text-like assets written into the cache.
	CacheableAssets []string
	// NonCacheableAssets lists synced binary assets stored with a detected
	// MIME type only.
	NonCacheableAssets []string
	// MimeTypes maps synced asset paths to their detected MIME types.
	MimeTypes map[string]string
}

// CacheSyncResult is the outcome of a cache-only sync operation.
type CacheSyncResult struct {
	Result
	InvalidatedKeys   []string
	WarmedKeys        []string
	ClearedNamespaces []string
}

// outcome is the terminal state of a single file sync.
type outcome struct {
	synced    []string
	conflicts []Conflict
	errs      []error
	skipped   []string
	backedUp  []string

	// template sync
	cacheInvalidated []string
	bytecodeCleared  []string
	// settings sync
	adapterAffected string
	// static sync
	cacheableAsset    string
	nonCacheableAsset string
	mimeType          string
}
