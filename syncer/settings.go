package syncer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// SettingsSyncOptions configures a settings sync run.
type SettingsSyncOptions struct {
	// Root is the local settings tree (default "settings").
	Root string
	// AdapterNames, when non-empty, restricts the run to the named adapters
	// (file stems).
	AdapterNames []string
	// Bucket is the storage bucket name (default "settings").
	Bucket string
	// ReloadConfig requests a configuration reload for the affected adapters
	// after a successful run. Nil defaults to true; the reload still requires
	// a reloader collaborator to be installed.
	ReloadConfig *bool
	// Strategy defaults to DefaultStrategy.
	Strategy *Strategy
}

func (o *SettingsSyncOptions) withDefaults() {
	if o.Root == "" {
		o.Root = "settings"
	}
	if o.Bucket == "" {
		o.Bucket = "settings"
	}
	if o.ReloadConfig == nil {
		reload := true
		o.ReloadConfig = &reload
	}
}

// SyncSettings synchronises YAML settings files with the settings bucket.
// Local content must parse as YAML or the file is skipped; pulled remote
// content must parse before it is written locally or the file is skipped; a
// parse failure on resolved conflict content aborts the resolution. Remote
// content that a push or a local-winning resolution replaces is not parsed.
// After a successful run the configuration
// collaborator is asked to reload the affected adapters.
func (e *Engine) SyncSettings(ctx context.Context, opts SettingsSyncOptions) *SettingsResult {
	opts.withDefaults()
	strategy := DefaultStrategy()
	if opts.Strategy != nil {
		strategy = opts.Strategy.withDefaults()
	}

	result := &SettingsResult{}
	bucket := e.storage.Bucket(opts.Bucket)

	jobs, err := e.discover(ctx, opts.Root, bucket, []string{"*.yml", "*.yaml"}, nil)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	jobs = filterAdapters(jobs, opts.AdapterNames)
	e.log.Debug("discovered settings files", "count", len(jobs))

	hooks := syncHooks{
		validateLocal: func(state fileState) error {
			return validateYAML(state.content)
		},
		validateResolved: validateYAML,
		afterSync: func(_ context.Context, job fileJob, _ []byte, out *outcome) {
			out.adapterAffected = adapterName(job.relPath)
		},
	}

	affected := map[string]bool{}
	e.run(ctx, strategy, bucket, jobs, hooks, &result.Result, func(out *outcome) {
		if out.adapterAffected != "" && !affected[out.adapterAffected] {
			affected[out.adapterAffected] = true
			result.AdaptersAffected = append(result.AdaptersAffected, out.adapterAffected)
		}
	})

	if *opts.ReloadConfig && e.config != nil && len(result.SyncedItems) > 0 {
		if err := e.config.Reload(ctx, result.AdaptersAffected); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("configuration reload: %w", err))
		} else {
			result.ConfigReloaded = append(result.ConfigReloaded, result.AdaptersAffected...)
			e.log.Debug("reloaded configuration", "adapters", result.AdaptersAffected)
		}
	}

	e.log.Debug("settings sync completed",
		"synced", len(result.SyncedItems),
		"adapters", len(result.AdaptersAffected),
		"errors", len(result.Errors))
	return result
}

// adapterName derives the adapter a settings file belongs to from its stem.
func adapterName(relPath string) string {
	base := path.Base(relPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

func filterAdapters(jobs []fileJob, names []string) []fileJob {
	if len(names) == 0 {
		return jobs
	}
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		allowed[name] = true
	}
	var out []fileJob
	for _, job := range jobs {
		if allowed[adapterName(job.relPath)] {
			out = append(out, job)
		}
	}
	return out
}

func validateYAML(content []byte) error {
	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}
