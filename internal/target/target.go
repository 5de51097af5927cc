// Package target implements the backends a cycle's artifacts are synchronized
// to. Each backend is a SyncTarget with its own write policy.
package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/yhlac/wallsyncd/internal/media"
	"github.com/yhlac/wallsyncd/internal/provider"
)

// ErrBackendWrite marks a rejected write to an overwrite backend
var ErrBackendWrite = errors.New("backend write failure")

// Target names used in reports
const (
	NameArchive     = "archive"
	NameObjectStore = "objectStore"
	NameFastKV      = "fastKv"
)

// Kind is the type of backend
type Kind string

const (
	KindObjectStore Kind = "object-store"
	KindFastKV      Kind = "fast-kv"
	KindArchive     Kind = "version-archive"
)

// Policy is how a backend decides whether to write
type Policy string

const (
	PolicyOverwrite      Policy = "idempotent-overwrite"
	PolicyDiffThenCommit Policy = "diff-then-commit"
)

// Outcome is the per-target result of one cycle
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Metadata describes the day's image to readers
type Metadata struct {
	Title           string `json:"title"`
	CaptionText     string `json:"captionText"`
	AttributionLink string `json:"attributionLink"`
	Date            string `json:"date"`
	Color           string `json:"color"`
}

// NewMetadata builds the metadata document for a snapshot
func NewMetadata(snap *provider.Snapshot, color string) Metadata {
	return Metadata{
		Title:           snap.Title,
		CaptionText:     snap.CaptionText,
		AttributionLink: snap.AttributionLink,
		Date:            snap.ID(),
		Color:           color,
	}
}

// Payload is everything a cycle hands to the targets
type Payload struct {
	Snapshot  *provider.Snapshot
	Artifacts []*media.Artifact
	Metadata  Metadata
}

// Artifact returns the artifact for role, or nil when it was not produced
func (p *Payload) Artifact(role media.Role) *media.Artifact {
	for _, a := range p.Artifacts {
		if a.Role == role {
			return a
		}
	}
	return nil
}

// Result is the outcome of one target write
type Result struct {
	Outcome Outcome
	Err     error
	// CommitSHA is set when the archive branch moved
	CommitSHA string
}

// SyncTarget is a destination backend. Write never panics on backend
// errors; failures are reported in the Result.
type SyncTarget interface {
	Name() string
	Kind() Kind
	Policy() Policy
	Write(ctx context.Context, p *Payload) Result
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}

func writeFailed(name string, err error) Result {
	return failed(fmt.Errorf("%w: %s: %w", ErrBackendWrite, name, err))
}
