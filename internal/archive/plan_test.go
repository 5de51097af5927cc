package archive

import (
	"errors"
	"strings"
	"testing"
)

func TestCommitPlanTransitions(t *testing.T) {
	var p CommitPlan
	changed := []Entry{{Path: "a"}, {Path: "b"}}

	if err := p.Diffed(Head{CommitSHA: "c0", TreeSHA: "t0"}, changed); err != nil {
		t.Fatal(err)
	}
	if err := p.BlobsCreated([]string{"b1", "b2"}); err != nil {
		t.Fatal(err)
	}

	entries := p.TreeEntries()
	if len(entries) != 2 || entries[1].Path != "b" || entries[1].BlobSHA != "b2" {
		t.Errorf("unexpected tree entries: %+v", entries)
	}

	if err := p.TreeBuilt("t1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Committed("c1"); err != nil {
		t.Fatal(err)
	}
	if err := p.RefMoved(); err != nil {
		t.Fatal(err)
	}

	if p.Phase != PhaseRefMoved {
		t.Errorf("phase = %s, want ref-moved", p.Phase)
	}
	if p.BaseTreeSHA != "t0" || p.NewTreeSHA != "t1" || p.NewCommitSHA != "c1" {
		t.Errorf("unexpected plan: %+v", p)
	}
}

func TestCommitPlanRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		run     func(p *CommitPlan) error
		wantErr string
	}{
		{
			name:    "tree before blobs",
			run:     func(p *CommitPlan) error { return p.TreeBuilt("t1") },
			wantErr: "expected blobs-created, got idle",
		},
		{
			name:    "ref before commit",
			run:     func(p *CommitPlan) error { return p.RefMoved() },
			wantErr: "expected committed, got idle",
		},
		{
			name: "diff without base",
			run: func(p *CommitPlan) error {
				return p.Diffed(Head{}, nil)
			},
			wantErr: "base commit and tree are required",
		},
		{
			name: "blobs for empty plan",
			run: func(p *CommitPlan) error {
				if err := p.Diffed(Head{CommitSHA: "c", TreeSHA: "t"}, nil); err != nil {
					return err
				}
				return p.BlobsCreated(nil)
			},
			wantErr: "no changed entries",
		},
		{
			name: "blob count mismatch",
			run: func(p *CommitPlan) error {
				if err := p.Diffed(Head{CommitSHA: "c", TreeSHA: "t"}, []Entry{{Path: "a"}}); err != nil {
					return err
				}
				return p.BlobsCreated([]string{"b1", "b2"})
			},
			wantErr: "got 2 blobs for 1 entries",
		},
		{
			name: "empty blob sha",
			run: func(p *CommitPlan) error {
				if err := p.Diffed(Head{CommitSHA: "c", TreeSHA: "t"}, []Entry{{Path: "a"}}); err != nil {
					return err
				}
				return p.BlobsCreated([]string{""})
			},
			wantErr: "empty sha for a",
		},
		{
			name: "diffed twice",
			run: func(p *CommitPlan) error {
				head := Head{CommitSHA: "c", TreeSHA: "t"}
				if err := p.Diffed(head, nil); err != nil {
					return err
				}
				return p.Diffed(head, nil)
			},
			wantErr: "expected idle, got diffed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p CommitPlan
			err := tt.run(&p)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEntryChanged(t *testing.T) {
	stored := []byte(`{"title":"Old title","captionText":"A lake","attributionLink":"https://example.com/a"}`)
	fields := []string{"captionText", "attributionLink"}

	tests := []struct {
		name        string
		entry       Entry
		stored      []byte
		wantChanged bool
		wantDiffErr bool
	}{
		{
			name:        "binary equal",
			entry:       Entry{Path: "x.webp", Content: []byte{1, 2, 3}},
			stored:      []byte{1, 2, 3},
			wantChanged: false,
		},
		{
			name:        "binary differs",
			entry:       Entry{Path: "x.webp", Content: []byte{1, 2, 3}},
			stored:      []byte{1, 2, 4},
			wantChanged: true,
		},
		{
			name: "json whitespace and key order",
			entry: Entry{Path: "latest.json", Kind: KindJSON, CompareFields: fields, Content: []byte(`{
  "attributionLink": "https://example.com/a",
  "captionText": "A lake",
  "title": "Old title"
}`)},
			stored:      stored,
			wantChanged: false,
		},
		{
			name:        "json ignored field differs",
			entry:       Entry{Path: "latest.json", Kind: KindJSON, CompareFields: fields, Content: []byte(`{"title":"New title","captionText":"A lake","attributionLink":"https://example.com/a"}`)},
			stored:      stored,
			wantChanged: false,
		},
		{
			name:        "json caption differs",
			entry:       Entry{Path: "latest.json", Kind: KindJSON, CompareFields: fields, Content: []byte(`{"captionText":"A river","attributionLink":"https://example.com/a"}`)},
			stored:      stored,
			wantChanged: true,
		},
		{
			name:        "json link differs",
			entry:       Entry{Path: "latest.json", Kind: KindJSON, CompareFields: fields, Content: []byte(`{"captionText":"A lake","attributionLink":""}`)},
			stored:      stored,
			wantChanged: true,
		},
		{
			name:        "json without compare fields is structural",
			entry:       Entry{Path: "latest.json", Kind: KindJSON, Content: []byte(`{"captionText":"A lake","attributionLink":"https://example.com/a"}`)},
			stored:      stored,
			wantChanged: true,
		},
		{
			name:        "stored json malformed",
			entry:       Entry{Path: "latest.json", Kind: KindJSON, CompareFields: fields, Content: []byte(`{"captionText":"A lake"}`)},
			stored:      []byte(`{"captionText":`),
			wantChanged: true,
			wantDiffErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, err := tt.entry.Changed(tt.stored)
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if (err != nil) != tt.wantDiffErr {
				t.Fatalf("err = %v, wantDiffErr %v", err, tt.wantDiffErr)
			}
			if err != nil {
				var diffErr *DiffError
				if !errors.As(err, &diffErr) || diffErr.Path != "latest.json" {
					t.Errorf("expected DiffError for latest.json, got %v", err)
				}
			}
		})
	}
}
