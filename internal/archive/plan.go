package archive

import (
	"fmt"
)

// Phase is the progress of a CommitPlan
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDiffed
	PhaseBlobsCreated
	PhaseTreeBuilt
	PhaseCommitted
	PhaseRefMoved
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDiffed:
		return "diffed"
	case PhaseBlobsCreated:
		return "blobs-created"
	case PhaseTreeBuilt:
		return "tree-built"
	case PhaseCommitted:
		return "committed"
	case PhaseRefMoved:
		return "ref-moved"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// CommitPlan holds the ordered artifacts of one archive write. Each field is
// set only once the object it names exists in the store.
type CommitPlan struct {
	Phase         Phase
	Branch        string
	BaseCommitSHA string
	BaseTreeSHA   string
	Changed       []Entry
	BlobSHAs      []string
	NewTreeSHA    string
	NewCommitSHA  string
}

// Diffed records the base the plan builds on and the entries that differ
func (p *CommitPlan) Diffed(head Head, changed []Entry) error {
	if err := p.expect(PhaseIdle); err != nil {
		return err
	}
	if head.CommitSHA == "" || head.TreeSHA == "" {
		return fmt.Errorf("diffed: base commit and tree are required")
	}
	p.BaseCommitSHA = head.CommitSHA
	p.BaseTreeSHA = head.TreeSHA
	p.Changed = changed
	p.Phase = PhaseDiffed
	return nil
}

// BlobsCreated records one blob sha per changed entry, in entry order
func (p *CommitPlan) BlobsCreated(shas []string) error {
	if err := p.expect(PhaseDiffed); err != nil {
		return err
	}
	if len(p.Changed) == 0 {
		return fmt.Errorf("blobs created: plan has no changed entries")
	}
	if len(shas) != len(p.Changed) {
		return fmt.Errorf("blobs created: got %d blobs for %d entries", len(shas), len(p.Changed))
	}
	for i, sha := range shas {
		if sha == "" {
			return fmt.Errorf("blobs created: empty sha for %s", p.Changed[i].Path)
		}
	}
	p.BlobSHAs = shas
	p.Phase = PhaseBlobsCreated
	return nil
}

// TreeBuilt records the new root tree
func (p *CommitPlan) TreeBuilt(treeSHA string) error {
	if err := p.expect(PhaseBlobsCreated); err != nil {
		return err
	}
	if treeSHA == "" {
		return fmt.Errorf("tree built: empty tree sha")
	}
	p.NewTreeSHA = treeSHA
	p.Phase = PhaseTreeBuilt
	return nil
}

// Committed records the new commit
func (p *CommitPlan) Committed(commitSHA string) error {
	if err := p.expect(PhaseTreeBuilt); err != nil {
		return err
	}
	if commitSHA == "" {
		return fmt.Errorf("committed: empty commit sha")
	}
	p.NewCommitSHA = commitSHA
	p.Phase = PhaseCommitted
	return nil
}

// RefMoved marks the branch as pointing at the new commit
func (p *CommitPlan) RefMoved() error {
	if err := p.expect(PhaseCommitted); err != nil {
		return err
	}
	p.Phase = PhaseRefMoved
	return nil
}

// TreeEntries pairs each changed path with its blob
func (p *CommitPlan) TreeEntries() []TreeEntry {
	if len(p.BlobSHAs) != len(p.Changed) {
		return nil
	}
	entries := make([]TreeEntry, len(p.Changed))
	for i, e := range p.Changed {
		entries[i] = TreeEntry{Path: e.Path, BlobSHA: p.BlobSHAs[i]}
	}
	return entries
}

func (p *CommitPlan) expect(from Phase) error {
	if p.Phase != from {
		return fmt.Errorf("invalid plan transition: expected %s, got %s", from, p.Phase)
	}
	return nil
}
