package sync

import (
	"time"

	"github.com/yhlac/wallsyncd/internal/metrics"
	"github.com/yhlac/wallsyncd/internal/target"
)

// Variant outcomes
const (
	VariantOK     = "ok"
	VariantFailed = "failed"
)

// Report is the structured result of one cycle
type Report struct {
	CycleID    string                    `json:"cycleId"`
	SnapshotID string                    `json:"snapshotId,omitempty"`
	StartedAt  time.Time                 `json:"startedAt"`
	FinishedAt time.Time                 `json:"finishedAt"`
	DryRun     bool                      `json:"dryRun,omitempty"`
	PerTarget  map[string]target.Outcome `json:"perTarget"`
	Variants   map[string]string         `json:"variants"`
	Errors     map[string]string         `json:"errors,omitempty"`
	CommitSHA  string                    `json:"commitSha,omitempty"`
}

func newReport(cycleID string, started time.Time) *Report {
	return &Report{
		CycleID:   cycleID,
		StartedAt: started,
		PerTarget: make(map[string]target.Outcome),
		Variants:  make(map[string]string),
	}
}

func (r *Report) addError(name string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[name] = err.Error()
}

// Status summarizes the report as ok, partial or failed
func (r *Report) Status() string {
	produced := false
	for _, v := range r.Variants {
		if v == VariantOK {
			produced = true
			break
		}
	}
	if !produced {
		return metrics.StatusFailed
	}
	if len(r.Errors) > 0 {
		return metrics.StatusPartial
	}
	return metrics.StatusOK
}
