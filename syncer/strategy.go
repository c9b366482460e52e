// Package syncer synchronises a local filesystem tree with an object-store
// bucket, with conflict resolution, optional backups, typed-file validation
// and cache coherence. All failures accumulate into the run result; the
// engine never fails past its entry points.
package syncer

import (
	"errors"
	"time"
)

// Direction controls which way content flows during a sync run.
type Direction int

const (
	// Pull copies remote content to the local tree.
	Pull Direction = iota
	// Push copies local content to the remote bucket.
	Push
	// Bidirectional syncs whichever side is missing or resolves conflicts.
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case Pull:
		return "pull"
	case Push:
		return "push"
	default:
		return "bidirectional"
	}
}

// ConflictStrategy selects the resolution policy when both sides of a sync
// have diverging content.
type ConflictStrategy int

const (
	// RemoteWins overwrites local content with remote.
	RemoteWins ConflictStrategy = iota
	// LocalWins overwrites remote content with local.
	LocalWins
	// NewestWins takes the side with the larger modification time, falling
	// back to remote when mtimes are missing or equal.
	NewestWins
	// Manual records a conflict for operator resolution; nothing is written.
	Manual
	// BackupBoth treats remote as the winner after backing up the local
	// content to a ".conflict" sibling.
	BackupBoth
)

func (s ConflictStrategy) String() string {
	switch s {
	case RemoteWins:
		return "remote_wins"
	case LocalWins:
		return "local_wins"
	case NewestWins:
		return "newest_wins"
	case Manual:
		return "manual"
	default:
		return "backup_both"
	}
}

// Strategy configures a sync run.
type Strategy struct {
	Direction        Direction
	Conflict         ConflictStrategy
	DryRun           bool
	BackupOnConflict bool
	// MaxConcurrent caps the number of files synced in parallel.
	MaxConcurrent int
	// Timeout bounds the whole run; exceeding it records ErrSyncTimeout.
	Timeout time.Duration
	// RetryAttempts retries a failed file sync with linear backoff
	// RetryDelay, 2×RetryDelay, ...
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultStrategy returns the default sync configuration: bidirectional,
// newest wins, backups on conflict, five files in flight.
func DefaultStrategy() Strategy {
	return Strategy{
		Direction:        Bidirectional,
		Conflict:         NewestWins,
		BackupOnConflict: true,
		MaxConcurrent:    5,
		Timeout:          30 * time.Second,
		RetryAttempts:    2,
		RetryDelay:       500 * time.Millisecond,
	}
}

func (s Strategy) withDefaults() Strategy {
	def := DefaultStrategy()
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = def.MaxConcurrent
	}
	if s.Timeout <= 0 {
		s.Timeout = def.Timeout
	}
	if s.RetryAttempts < 0 {
		s.RetryAttempts = 0
	}
	if s.RetryDelay <= 0 {
		s.RetryDelay = def.RetryDelay
	}
	return s
}

// ErrSyncTimeout is recorded in the run result when the whole gather exceeds
// the strategy timeout. Results of tasks that completed in time are kept.
var ErrSyncTimeout = errors.New("sync run timed out")

// ErrManualResolution describes a conflict left for manual resolution. Under
// the Manual strategy the engine records a Conflict with reason
// "manual_resolution_required"; this error value is not added to Errors.
var ErrManualResolution = errors.New("manual conflict resolution required")
