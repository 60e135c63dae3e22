// Package github binds the orchestrator's platform interfaces to the
// GitHub REST API: repository contents, git refs, the checks API, the
// deployments API and Actions workflow runs. The orchestrator never
// imports this package; it sees only the interfaces.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/stagehand-dev/stagehand/deployconfig"
	"github.com/stagehand-dev/stagehand/lock"
	"github.com/stagehand-dev/stagehand/orchestrator"
)

type Client struct {
	gh    *github.Client
	owner string
	repo  string

	// when set, check-suite probes are scoped to this app
	appID int64
}

var _ orchestrator.Platform = (*Client)(nil)

func New(ctx context.Context, owner, repo, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		gh:    github.NewClient(oauth2.NewClient(ctx, ts)),
		owner: owner,
		repo:  repo,
	}
}

func (c *Client) WithAppID(id int64) *Client {
	c.appID = id
	return c
}

// do retries transient failures (5xx, rate limits) and leaves
// everything else to the caller. Conflict responses are never retried:
// a failed ref create is the lock saying no.
func do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn,
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
}

func isTransient(err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode >= 500
	}
	return false
}

func isNotFound(err error) bool {
	return isStatus(err, 404)
}

func isStatus(err error, code int) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == code
}

// --- deployconfig.Source

func (c *Client) ListConfigFiles(ctx context.Context, dir, ref string) ([]deployconfig.FileInfo, error) {
	entries, err := do(ctx, func() ([]*github.RepositoryContent, error) {
		_, entries, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, dir,
			&github.RepositoryContentGetOptions{Ref: ref})
		return entries, err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s at %s: %w", dir, ref, deployconfig.ErrNotFound)
		}
		return nil, err
	}

	var files []deployconfig.FileInfo
	for _, e := range entries {
		if e.GetType() != "file" {
			continue
		}
		files = append(files, deployconfig.FileInfo{Name: e.GetName(), Path: e.GetPath()})
	}
	return files, nil
}

func (c *Client) ReadFile(ctx context.Context, path, ref string) ([]byte, error) {
	file, err := do(ctx, func() (*github.RepositoryContent, error) {
		file, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
			&github.RepositoryContentGetOptions{Ref: ref})
		return file, err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s at %s: %w", path, ref, deployconfig.ErrNotFound)
		}
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s at %s is not a file: %w", path, ref, deployconfig.ErrNotFound)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return []byte(content), nil
}

// --- lock.RefStore

func (c *Client) CreateRef(ctx context.Context, ref, sha string) error {
	// no retry wrapper here: the create-fails-if-exists semantics is
	// the concurrency primitive and a retried 422 means nothing
	_, _, err := c.gh.Git.CreateRef(ctx, c.owner, c.repo, &github.Reference{
		Ref:    github.String(ref),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	if isStatus(err, 422) {
		// only the genuine conflict becomes the sentinel; transport
		// failures must surface as such
		return fmt.Errorf("%s: %w", ref, lock.ErrRefExists)
	}
	return err
}

func (c *Client) GetRef(ctx context.Context, ref string) (string, error) {
	got, err := do(ctx, func() (*github.Reference, error) {
		got, _, err := c.gh.Git.GetRef(ctx, c.owner, c.repo, shortRef(ref))
		return got, err
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%s: %w", ref, lock.ErrRefMissing)
		}
		return "", err
	}
	return got.GetObject().GetSHA(), nil
}

func (c *Client) UpdateRef(ctx context.Context, ref, sha string) error {
	_, err := do(ctx, func() (struct{}, error) {
		_, _, err := c.gh.Git.UpdateRef(ctx, c.owner, c.repo, &github.Reference{
			Ref:    github.String(ref),
			Object: &github.GitObject{SHA: github.String(sha)},
		}, true)
		return struct{}{}, err
	})
	return err
}

func (c *Client) DeleteRef(ctx context.Context, ref string) error {
	_, err := c.gh.Git.DeleteRef(ctx, c.owner, c.repo, shortRef(ref))
	if isNotFound(err) || isStatus(err, 422) {
		return fmt.Errorf("%s: %w", ref, lock.ErrRefMissing)
	}
	return err
}

// shortRef strips the "refs/" prefix the git data API expects to be
// absent.
func shortRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/")
}

// --- orchestrator.Checks

func (c *Client) CheckSuiteExists(ctx context.Context, sha string) (bool, error) {
	opts := &github.ListCheckSuiteOptions{}
	if c.appID != 0 {
		opts.AppID = github.Int(int(c.appID))
	}
	res, err := do(ctx, func() (*github.ListCheckSuiteResults, error) {
		res, _, err := c.gh.Checks.ListCheckSuitesForRef(ctx, c.owner, c.repo, sha, opts)
		return res, err
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return res.GetTotal() > 0, nil
}

func (c *Client) CreateCheckSuite(ctx context.Context, sha string) error {
	_, err := do(ctx, func() (struct{}, error) {
		_, _, err := c.gh.Checks.CreateCheckSuite(ctx, c.owner, c.repo, github.CreateCheckSuiteOptions{
			HeadSHA: sha,
		})
		return struct{}{}, err
	})
	return err
}

func (c *Client) CreateCheckRun(ctx context.Context, env, sha string) (int64, error) {
	run, err := do(ctx, func() (*github.CheckRun, error) {
		run, _, err := c.gh.Checks.CreateCheckRun(ctx, c.owner, c.repo, github.CreateCheckRunOptions{
			Name:    env,
			HeadSHA: sha,
		})
		return run, err
	})
	if err != nil {
		return 0, err
	}
	return run.GetID(), nil
}

func (c *Client) GetCheckRun(ctx context.Context, id int64) (orchestrator.CheckRun, error) {
	run, err := do(ctx, func() (*github.CheckRun, error) {
		run, _, err := c.gh.Checks.GetCheckRun(ctx, c.owner, c.repo, id)
		return run, err
	})
	if err != nil {
		return orchestrator.CheckRun{}, err
	}
	return orchestrator.CheckRun{
		ID:         run.GetID(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
	}, nil
}

func (c *Client) UpdateCheckRun(ctx context.Context, id int64, update orchestrator.CheckUpdate) error {
	opts := github.UpdateCheckRunOptions{}
	if update.Status != "" {
		opts.Status = github.String(update.Status)
	}
	if update.Conclusion != "" {
		opts.Conclusion = github.String(update.Conclusion)
	}
	for _, a := range update.Actions {
		opts.Actions = append(opts.Actions, &github.CheckRunAction{
			Label:       a.Label,
			Description: a.Description,
			Identifier:  a.Identifier,
		})
	}
	if update.Output != nil {
		opts.Output = &github.CheckRunOutput{
			Title:   github.String(update.Output.Title),
			Summary: github.String(update.Output.Summary),
		}
	}

	_, err := do(ctx, func() (struct{}, error) {
		_, _, err := c.gh.Checks.UpdateCheckRun(ctx, c.owner, c.repo, id, opts)
		return struct{}{}, err
	})
	return err
}

// --- orchestrator.Deployments

func (c *Client) CreateDeployment(ctx context.Context, env, ref, task string, unit orchestrator.Unit) (int64, error) {
	dep, err := do(ctx, func() (*github.Deployment, error) {
		dep, _, err := c.gh.Repositories.CreateDeployment(ctx, c.owner, c.repo, &github.DeploymentRequest{
			Ref:              github.String(ref),
			Task:             github.String(task),
			Environment:      github.String(env),
			Payload:          unit,
			AutoMerge:        github.Bool(false),
			RequiredContexts: &[]string{},
		})
		return dep, err
	})
	if err != nil {
		return 0, err
	}
	return dep.GetID(), nil
}

func (c *Client) CreateDeploymentStatus(ctx context.Context, id int64, state, description, url string) error {
	req := &github.DeploymentStatusRequest{
		State:       github.String(state),
		Description: github.String(description),
	}
	if url != "" {
		req.EnvironmentURL = github.String(url)
	}

	_, err := do(ctx, func() (struct{}, error) {
		_, _, err := c.gh.Repositories.CreateDeploymentStatus(ctx, c.owner, c.repo, id, req)
		return struct{}{}, err
	})
	return err
}

func (c *Client) DeleteDeployment(ctx context.Context, id int64) error {
	_, err := do(ctx, func() (struct{}, error) {
		_, err := c.gh.Repositories.DeleteDeployment(ctx, c.owner, c.repo, id)
		return struct{}{}, err
	})
	return err
}

func (c *Client) LatestDeployment(ctx context.Context, env string) (*orchestrator.Deployment, error) {
	deps, err := do(ctx, func() ([]*github.Deployment, error) {
		deps, _, err := c.gh.Repositories.ListDeployments(ctx, c.owner, c.repo, &github.DeploymentsListOptions{
			Environment: env,
			ListOptions: github.ListOptions{PerPage: 1},
		})
		return deps, err
	})
	if err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		return nil, nil
	}

	// deployments list newest first; the head is the current attempt
	latest := deps[0]
	var unit orchestrator.Unit
	if err := json.Unmarshal(latest.Payload, &unit); err != nil {
		return nil, fmt.Errorf("decoding deployment %d payload: %w", latest.GetID(), err)
	}

	return &orchestrator.Deployment{ID: latest.GetID(), Unit: unit}, nil
}

// --- orchestrator.Runs

func (c *Client) ListRuns(ctx context.Context, branch, event string) ([]orchestrator.Run, error) {
	runs, err := do(ctx, func() (*github.WorkflowRuns, error) {
		runs, _, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, c.owner, c.repo, &github.ListWorkflowRunsOptions{
			Branch:      branch,
			Event:       event,
			ListOptions: github.ListOptions{PerPage: 20},
		})
		return runs, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]orchestrator.Run, 0, len(runs.WorkflowRuns))
	for _, r := range runs.WorkflowRuns {
		out = append(out, orchestrator.Run{
			ID:         r.GetID(),
			SuiteID:    r.GetCheckSuiteID(),
			HeadSHA:    r.GetHeadSHA(),
			Status:     r.GetStatus(),
			Conclusion: r.GetConclusion(),
			URL:        r.GetHTMLURL(),
		})
	}
	return out, nil
}

func (c *Client) ListArtifacts(ctx context.Context, runID int64) ([]orchestrator.Artifact, error) {
	arts, err := do(ctx, func() (*github.ArtifactList, error) {
		arts, _, err := c.gh.Actions.ListWorkflowRunArtifacts(ctx, c.owner, c.repo, runID, &github.ListOptions{PerPage: 50})
		return arts, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]orchestrator.Artifact, 0, len(arts.Artifacts))
	for _, a := range arts.Artifacts {
		out = append(out, orchestrator.Artifact{
			ID:   a.GetID(),
			Name: a.GetName(),
			URL:  a.GetArchiveDownloadURL(),
		})
	}
	return out, nil
}
