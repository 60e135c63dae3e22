package orchestrator

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/stagehand-dev/stagehand/deployconfig"
	"github.com/stagehand-dev/stagehand/lock"
)

// fakePlatform is an in-memory Platform. Ref creation is atomic under
// the mutex, matching the platform guarantee the lock relies on.
type fakePlatform struct {
	mu sync.Mutex

	files map[string][]byte

	refs   map[string]string
	suites map[string]bool

	checkSeq int64
	checks   map[int64]*fakeCheck

	depSeq      int64
	deployments []*fakeDeployment

	runs      map[string][]Run
	artifacts map[int64][]Artifact
	statuses  map[int64][]string
}

type fakeCheck struct {
	id         int64
	env        string
	sha        string
	status     string
	conclusion string
	actions    []CheckAction
	output     *CheckOutput
}

type fakeDeployment struct {
	id      int64
	env     string
	ref     string
	task    string
	unit    Unit
	deleted bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		files:     make(map[string][]byte),
		refs:      make(map[string]string),
		suites:    make(map[string]bool),
		checks:    make(map[int64]*fakeCheck),
		runs:      make(map[string][]Run),
		artifacts: make(map[int64][]Artifact),
		statuses:  make(map[int64][]string),
	}
}

func (f *fakePlatform) addFile(p string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = content
}

// addRun prepends: ListRuns returns most recent first.
func (f *fakePlatform) addRun(branch string, run Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[branch] = append([]Run{run}, f.runs[branch]...)
}

func (f *fakePlatform) setRunState(branch string, runID int64, status, conclusion string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.runs[branch] {
		if r.ID == runID {
			f.runs[branch][i].Status = status
			f.runs[branch][i].Conclusion = conclusion
		}
	}
}

func (f *fakePlatform) checksFor(env string) []*fakeCheck {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeCheck
	for i := int64(1); i <= f.checkSeq; i++ {
		if c := f.checks[i]; c != nil && c.env == env {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakePlatform) activeDeployments(env string) []*fakeDeployment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeDeployment
	for _, d := range f.deployments {
		if d.env == env && !d.deleted {
			out = append(out, d)
		}
	}
	return out
}

// --- deployconfig.Source

func (f *fakePlatform) ListConfigFiles(_ context.Context, dir, _ string) ([]deployconfig.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []deployconfig.FileInfo
	for p := range f.files {
		if path.Dir(p) == dir {
			infos = append(infos, deployconfig.FileInfo{Name: path.Base(p), Path: p})
		}
	}
	if infos == nil {
		return nil, fmt.Errorf("%s: %w", dir, deployconfig.ErrNotFound)
	}
	return infos, nil
}

func (f *fakePlatform) ReadFile(_ context.Context, p, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, deployconfig.ErrNotFound)
	}
	return raw, nil
}

// --- lock.RefStore

func (f *fakePlatform) CreateRef(_ context.Context, ref, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.refs[ref]; ok {
		return fmt.Errorf("%s: %w", ref, lock.ErrRefExists)
	}
	f.refs[ref] = sha
	return nil
}

func (f *fakePlatform) GetRef(_ context.Context, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sha, ok := f.refs[ref]
	if !ok {
		return "", fmt.Errorf("%s: %w", ref, lock.ErrRefMissing)
	}
	return sha, nil
}

func (f *fakePlatform) UpdateRef(_ context.Context, ref, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[ref] = sha
	return nil
}

func (f *fakePlatform) DeleteRef(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.refs[ref]; !ok {
		return fmt.Errorf("%s: %w", ref, lock.ErrRefMissing)
	}
	delete(f.refs, ref)
	return nil
}

// --- Checks

func (f *fakePlatform) CheckSuiteExists(_ context.Context, sha string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suites[sha], nil
}

func (f *fakePlatform) CreateCheckSuite(_ context.Context, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suites[sha] = true
	return nil
}

func (f *fakePlatform) CreateCheckRun(_ context.Context, env, sha string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkSeq++
	f.checks[f.checkSeq] = &fakeCheck{id: f.checkSeq, env: env, sha: sha, status: StatusQueued}
	return f.checkSeq, nil
}

func (f *fakePlatform) GetCheckRun(_ context.Context, id int64) (CheckRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checks[id]
	if !ok {
		return CheckRun{}, fmt.Errorf("check run %d not found", id)
	}
	return CheckRun{ID: c.id, Status: c.status, Conclusion: c.conclusion}, nil
}

func (f *fakePlatform) UpdateCheckRun(_ context.Context, id int64, update CheckUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checks[id]
	if !ok {
		return fmt.Errorf("check run %d not found", id)
	}
	if update.Status != "" {
		c.status = update.Status
	}
	if update.Conclusion != "" {
		c.conclusion = update.Conclusion
	}
	c.actions = update.Actions
	if update.Output != nil {
		c.output = update.Output
	}
	return nil
}

// --- Deployments

func (f *fakePlatform) CreateDeployment(_ context.Context, env, ref, task string, unit Unit) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depSeq++
	f.deployments = append(f.deployments, &fakeDeployment{
		id:   f.depSeq,
		env:  env,
		ref:  ref,
		task: task,
		unit: unit,
	})
	return f.depSeq, nil
}

func (f *fakePlatform) CreateDeploymentStatus(_ context.Context, id int64, state, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = append(f.statuses[id], state)
	return nil
}

func (f *fakePlatform) DeleteDeployment(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deployments {
		if d.id == id {
			d.deleted = true
			return nil
		}
	}
	return fmt.Errorf("deployment %d not found", id)
}

func (f *fakePlatform) LatestDeployment(_ context.Context, env string) (*Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.deployments) - 1; i >= 0; i-- {
		d := f.deployments[i]
		if d.env == env && !d.deleted {
			return &Deployment{ID: d.id, Unit: d.unit}, nil
		}
	}
	return nil, nil
}

// --- Runs

func (f *fakePlatform) ListRuns(_ context.Context, branch, _ string) ([]Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Run{}, f.runs[branch]...), nil
}

func (f *fakePlatform) ListArtifacts(_ context.Context, runID int64) ([]Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Artifact{}, f.artifacts[runID]...), nil
}
