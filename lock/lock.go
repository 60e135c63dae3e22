// Package lock provides per-environment mutual exclusion without a
// datastore: the lock is a named ref on the platform, pinned to the
// commit being deployed. Ref creation is atomic there, which makes it
// the single concurrency primitive of the whole system — correctness
// holds across processes and restarts.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLockExists: the environment already has a lock ref.
	ErrLockExists = errors.New("environment is already locked")

	// ErrNotLocked: release of an environment that holds no lock.
	ErrNotLocked = errors.New("environment is not locked")

	// ErrRefExists and ErrRefMissing classify RefStore failures. A
	// store wraps them for genuine conflicts; anything else is a
	// transport failure and passes through untouched, so a flaky
	// upstream is never mistaken for a held lock.
	ErrRefExists  = errors.New("ref already exists")
	ErrRefMissing = errors.New("ref not found")
)

// ErrLockHeldByOther reports an Ensure that found the environment
// pinned to a different commit. That deployment owns the environment
// until it finishes.
type ErrLockHeldByOther struct {
	Env  string
	Held string
	Want string
}

func (e *ErrLockHeldByOther) Error() string {
	return fmt.Sprintf("environment %s is locked by %.7s, not %.7s", e.Env, e.Held, e.Want)
}

// RefStore is the platform's ref surface. CreateRef must fail with an
// error wrapping ErrRefExists when the ref already exists rather than
// overwrite it; DeleteRef reports a missing ref by wrapping
// ErrRefMissing.
type RefStore interface {
	CreateRef(ctx context.Context, ref, sha string) error
	GetRef(ctx context.Context, ref string) (string, error)
	UpdateRef(ctx context.Context, ref, sha string) error
	DeleteRef(ctx context.Context, ref string) error
}

type Manager struct {
	refs   RefStore
	prefix string
}

const DefaultPrefix = "refs/heads/deployments/"

func NewManager(refs RefStore, prefix string) *Manager {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Manager{refs: refs, prefix: prefix}
}

// Ref returns the full lock ref name for an environment.
func (m *Manager) Ref(env string) string {
	return m.prefix + env
}

// Branch returns the short branch name of the lock ref. The external
// runner executes on this branch, so the lock doubles as the run
// correlation anchor.
func (m *Manager) Branch(env string) string {
	return strings.TrimPrefix(m.Ref(env), "refs/heads/")
}

// Acquire creates the lock ref for env at sha. It is the exclusive,
// fail-loud variant for first-time starts: an existing ref means some
// deployment is in flight and the caller must not proceed.
func (m *Manager) Acquire(ctx context.Context, env, sha string) error {
	err := m.refs.CreateRef(ctx, m.Ref(env), sha)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRefExists):
		return fmt.Errorf("%w: %s", ErrLockExists, env)
	default:
		return fmt.Errorf("locking %s: %w", env, err)
	}
}

// Ensure verifies that env is locked at sha, locking it if it is not
// locked at all. The create is attempted first: probing for existence
// and then creating would leave a window where two callers both see
// "absent" and both proceed.
func (m *Manager) Ensure(ctx context.Context, env, sha string) error {
	err := m.refs.CreateRef(ctx, m.Ref(env), sha)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRefExists) {
		return fmt.Errorf("locking %s: %w", env, err)
	}

	held, err := m.refs.GetRef(ctx, m.Ref(env))
	if err != nil {
		return fmt.Errorf("reading lock for %s: %w", env, err)
	}
	if held != sha {
		return &ErrLockHeldByOther{Env: env, Held: held, Want: sha}
	}
	return nil
}

// Release removes the lock ref. Every acquired lock must end here, via
// success or failure; leaving one behind silently is a bug.
func (m *Manager) Release(ctx context.Context, env string) error {
	err := m.refs.DeleteRef(ctx, m.Ref(env))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRefMissing):
		return fmt.Errorf("%w: %s", ErrNotLocked, env)
	default:
		return fmt.Errorf("unlocking %s: %w", env, err)
	}
}

// Locked probes for the lock ref. Advisory only: act on Acquire or
// Ensure, never on a probe followed by a write.
func (m *Manager) Locked(ctx context.Context, env string) bool {
	_, err := m.refs.GetRef(ctx, m.Ref(env))
	return err == nil
}
