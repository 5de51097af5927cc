// Package sync runs one wallpaper cycle: fetch the day's snapshot, derive
// the encoded artifacts and write them to every configured target.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yhlac/wallsyncd/internal/config"
	"github.com/yhlac/wallsyncd/internal/media"
	"github.com/yhlac/wallsyncd/internal/metrics"
	"github.com/yhlac/wallsyncd/internal/provider"
	"github.com/yhlac/wallsyncd/internal/target"
)

// ErrNoArtifacts is returned when every variant failed and there is nothing
// to synchronize
var ErrNoArtifacts = errors.New("no artifacts produced")

// Engine orchestrates sync cycles
type Engine struct {
	fetcher     provider.Fetcher
	transformer *media.Transformer
	variants    []config.VariantConfig
	targets     []target.SyncTarget
	logger      *slog.Logger
	dryRun      bool
	now         func() time.Time
}

// NewEngine creates a new sync engine
func NewEngine(fetcher provider.Fetcher, transformer *media.Transformer, variants []config.VariantConfig, targets []target.SyncTarget, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		fetcher:     fetcher,
		transformer: transformer,
		variants:    variants,
		targets:     targets,
		logger:      logger,
		dryRun:      dryRun,
		now:         time.Now,
	}
}

// RunCycle executes one complete cycle. The report is always returned; the
// error is non-nil only when nothing could be produced, in which case it
// wraps provider.ErrUpstreamUnavailable or ErrNoArtifacts.
func (e *Engine) RunCycle(ctx context.Context) (*Report, error) {
	report := newReport(uuid.NewString(), e.now().UTC())
	report.DryRun = e.dryRun
	logger := e.logger.With("cycle_id", report.CycleID)

	logger.Info("starting cycle", "targets", len(e.targets), "dry_run", e.dryRun)

	payload, err := e.produce(ctx, logger, report)
	if err != nil {
		e.finish(logger, report)
		return report, err
	}

	if e.dryRun {
		for _, t := range e.targets {
			report.PerTarget[t.Name()] = target.OutcomeSkipped
			logger.Info("dry-run: would write target",
				"target", t.Name(),
				"kind", t.Kind(),
				"policy", t.Policy(),
				"artifacts", len(payload.Artifacts))
		}
		e.finish(logger, report)
		return report, nil
	}

	for name, res := range e.Sync(ctx, payload) {
		report.PerTarget[name] = res.Outcome
		if res.Err != nil {
			report.addError(name, res.Err)
		}
		if res.CommitSHA != "" {
			report.CommitSHA = res.CommitSHA
		}
	}

	e.finish(logger, report)
	return report, nil
}

// produce fetches the snapshot and derives every variant
func (e *Engine) produce(ctx context.Context, logger *slog.Logger, report *Report) (*target.Payload, error) {
	snap, err := e.fetcher.FetchSnapshot(ctx)
	if err != nil {
		report.addError("provider", err)
		logger.Error("failed to fetch snapshot", "error", err)
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	report.SnapshotID = snap.ID()
	logger.Info("fetched snapshot", "snapshot_id", snap.ID(), "title", snap.Title)

	sources := e.downloadSources(ctx, logger, snap)

	artifacts := make([]*media.Artifact, len(e.variants))
	errs := make([]error, len(e.variants))

	var g errgroup.Group
	for i, v := range e.variants {
		g.Go(func() error {
			src := sources[v.Source]
			if src.err != nil {
				errs[i] = src.err
				return nil
			}
			artifacts[i], errs[i] = e.transformer.Derive(src.data, media.Variant{
				Role:     media.Role(v.Role),
				MaxWidth: v.MaxWidth,
			}, snap.ID())
			return nil
		})
	}
	_ = g.Wait()

	var produced []*media.Artifact
	for i, v := range e.variants {
		metrics.RecordVariant(v.Role, errs[i] == nil)
		if errs[i] != nil {
			report.Variants[v.Role] = VariantFailed
			report.addError(v.Role, errs[i])
			logger.Warn("variant failed", "role", v.Role, "error", errs[i])
			continue
		}
		report.Variants[v.Role] = VariantOK
		produced = append(produced, artifacts[i])
		logger.Debug("variant derived",
			"role", v.Role,
			"width", artifacts[i].Width,
			"height", artifacts[i].Height,
			"bytes", len(artifacts[i].Bytes))
	}

	if len(produced) == 0 {
		logger.Error("no variant could be produced")
		return nil, ErrNoArtifacts
	}

	return &target.Payload{
		Snapshot:  snap,
		Artifacts: produced,
		Metadata:  target.NewMetadata(snap, accentColor(produced)),
	}, nil
}

type source struct {
	data []byte
	err  error
}

// downloadSources fetches the source images the variants need concurrently.
// Without a dedicated mobile URL, mobile variants use the main image.
func (e *Engine) downloadSources(ctx context.Context, logger *slog.Logger, snap *provider.Snapshot) map[string]source {
	urls := map[string]string{}
	for _, v := range e.variants {
		switch {
		case v.Source == config.SourceMobile && snap.MobileImageURL != "":
			urls[config.SourceMobile] = snap.MobileImageURL
		default:
			urls[config.SourceImage] = snap.SourceImageURL
		}
	}

	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	results := make([]source, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			data, err := e.fetcher.DownloadImage(ctx, urls[name])
			if err != nil {
				logger.Warn("failed to download source image", "source", name, "url", urls[name], "error", err)
			}
			results[i] = source{data: data, err: err}
			return nil
		})
	}
	_ = g.Wait()

	sources := make(map[string]source, len(names)+1)
	for i, name := range names {
		sources[name] = results[i]
	}
	if _, ok := sources[config.SourceMobile]; !ok {
		sources[config.SourceMobile] = sources[config.SourceImage]
	}
	return sources
}

// Sync writes the payload to every target concurrently and returns each
// target's result. A failing target never prevents writes to the others.
func (e *Engine) Sync(ctx context.Context, p *target.Payload) map[string]target.Result {
	results := make([]target.Result, len(e.targets))

	var g errgroup.Group
	for i, t := range e.targets {
		g.Go(func() error {
			results[i] = t.Write(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]target.Result, len(e.targets))
	for i, t := range e.targets {
		res := results[i]
		out[t.Name()] = res
		metrics.RecordTargetWrite(t.Name(), string(res.Outcome))

		if res.Err != nil {
			e.logger.Error("target write failed", "target", t.Name(), "kind", t.Kind(), "error", res.Err)
			continue
		}
		e.logger.Info("target written", "target", t.Name(), "outcome", res.Outcome)
	}
	return out
}

func (e *Engine) finish(logger *slog.Logger, report *Report) {
	report.FinishedAt = e.now().UTC()
	status := report.Status()
	metrics.RecordCycle(status, report.FinishedAt.Sub(report.StartedAt), report.FinishedAt)

	logger.Info("cycle finished",
		"status", status,
		"snapshot_id", report.SnapshotID,
		"targets", report.PerTarget,
		"commit", report.CommitSHA,
		"duration", report.FinishedAt.Sub(report.StartedAt))
}

// accentColor picks the desktop artifact's color, falling back to the first
// artifact produced
func accentColor(artifacts []*media.Artifact) string {
	for _, a := range artifacts {
		if a.Role == media.RoleDesktop {
			return a.AccentColor
		}
	}
	return artifacts[0].AccentColor
}
