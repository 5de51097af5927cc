package target

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yhlac/wallsyncd/internal/archive"
	"github.com/yhlac/wallsyncd/internal/media"
)

// archiveCompareFields decide whether latest.json changed; the rest of the
// document is derived from them or from the image
var archiveCompareFields = []string{"captionText", "attributionLink"}

// Archive records each day's desktop image and the latest metadata in the
// versioned archive
type Archive struct {
	committer  *archive.Committer
	pathPrefix string
	logger     *slog.Logger
}

// NewArchive creates an archive target
func NewArchive(committer *archive.Committer, pathPrefix string, logger *slog.Logger) *Archive {
	return &Archive{
		committer:  committer,
		pathPrefix: pathPrefix,
		logger:     logger,
	}
}

func (a *Archive) Name() string   { return NameArchive }
func (a *Archive) Kind() Kind     { return KindArchive }
func (a *Archive) Policy() Policy { return PolicyDiffThenCommit }

// ImagePath returns the archive path of the day's image, YYYY/YYYYMMDD.webp
func (a *Archive) ImagePath(p *Payload) string {
	return a.pathPrefix + p.Snapshot.PublishDate.Format("2006") + "/" + p.Snapshot.ID() + ".webp"
}

// LatestPath returns the archive path of the latest metadata document
func (a *Archive) LatestPath() string {
	return a.pathPrefix + "latest.json"
}

// Entries builds the candidate archive entries for a payload
func (a *Archive) Entries(p *Payload) ([]archive.Entry, error) {
	desktop := p.Artifact(media.RoleDesktop)
	if desktop == nil {
		return nil, nil
	}

	latest, err := json.MarshalIndent(p.Metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	latest = append(latest, '\n')

	return []archive.Entry{
		{Path: a.ImagePath(p), Content: desktop.Bytes, Kind: archive.KindBinary},
		{Path: a.LatestPath(), Content: latest, Kind: archive.KindJSON, CompareFields: archiveCompareFields},
	}, nil
}

// Write commits the entries that changed. The archive is skipped when the
// desktop image was not produced this cycle.
func (a *Archive) Write(ctx context.Context, p *Payload) Result {
	entries, err := a.Entries(p)
	if err != nil {
		return failed(err)
	}
	if len(entries) == 0 {
		a.logger.Warn("desktop artifact missing, skipping archive")
		return Result{Outcome: OutcomeSkipped}
	}

	res, err := a.committer.Commit(ctx, entries, archive.CommitMessage(p.Snapshot.PublishDate))
	if err != nil {
		return failed(err)
	}
	if !res.Changed {
		return Result{Outcome: OutcomeUnchanged}
	}
	return Result{Outcome: OutcomeUpdated, CommitSHA: res.Plan.NewCommitSHA}
}
