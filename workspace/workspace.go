// Package workspace owns the local filesystem lifecycle of cloned
// repositories: creation, tolerant removal, and re-cloning.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-retry"
)

const (
	// DefaultRemoveAttempts bounds how often a workspace removal is tried
	// before giving up. Version-control tooling leaves write-protected
	// files behind, so a single attempt is not enough on some platforms.
	DefaultRemoveAttempts = 3
	// DefaultRemoveBackoff is the fixed delay between removal attempts.
	DefaultRemoveBackoff = time.Second
)

// Manager is the exclusive owner of the workspace root. One directory per
// repository name lives underneath it; no other component touches them.
type Manager struct {
	baseDir   string
	gitBinary string
	log       log.Logger

	removeAttempts uint64
	removeBackoff  time.Duration
}

// Config holds configuration for creating a new workspace manager.
type Config struct {
	BaseDir        string // root directory for cloned repositories
	GitBinary      string // path to the git binary, defaults to "git"
	RemoveAttempts uint64
	RemoveBackoff  time.Duration
	Log            log.Logger
}

// NewManager creates a workspace manager and its root directory.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("workspace base directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}
	if cfg.RemoveAttempts == 0 {
		cfg.RemoveAttempts = DefaultRemoveAttempts
	}
	if cfg.RemoveBackoff <= 0 {
		cfg.RemoveBackoff = DefaultRemoveBackoff
	}

	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %s: %w", cfg.BaseDir, err)
	}

	return &Manager{
		baseDir:        cfg.BaseDir,
		gitBinary:      cfg.GitBinary,
		log:            cfg.Log,
		removeAttempts: cfg.RemoveAttempts,
		removeBackoff:  cfg.RemoveBackoff,
	}, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.baseDir
}

// Path returns the workspace directory for a repository.
func (m *Manager) Path(repoName string) string {
	return filepath.Join(m.baseDir, repoName)
}

// EnsureClean removes any existing workspace for the repository. Removal is
// best-effort: write-protection bits are cleared before every attempt, and
// failed attempts are retried on a fixed backoff. Returns false instead of
// an error when the workspace could not be fully removed.
func (m *Manager) EnsureClean(ctx context.Context, repoName string) bool {
	path := m.Path(repoName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true
	}
	m.log.Debug("Cleaning up existing workspace", "repo", repoName, "path", path)

	backoff, err := retry.NewConstant(m.removeBackoff)
	if err != nil {
		m.log.Error("Failed to create removal backoff", "err", err)
		return false
	}
	backoff = retry.WithMaxRetries(m.removeAttempts-1, backoff)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		clearWriteProtection(path)
		if err := os.RemoveAll(path); err != nil {
			m.log.Debug("Workspace removal attempt failed", "repo", repoName, "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		m.log.Warn("Could not remove workspace", "repo", repoName, "path", path, "attempts", attempt, "err", err)
		return false
	}
	return true
}

// Clone materializes a fresh working copy of the repository. Any existing
// workspace is removed first; if it cannot be fully removed the clone is
// aborted rather than layered onto a dirty tree. Clone failures are a
// normal outcome across a large batch, so they are logged with the
// captured stderr and reported as false, never raised.
func (m *Manager) Clone(ctx context.Context, remoteURL, repoName string) bool {
	if !m.EnsureClean(ctx, repoName) {
		m.log.Error("Workspace could not be cleaned, aborting clone", "repo", repoName)
		return false
	}

	path := m.Path(repoName)
	m.log.Info("Cloning repository", "repo", repoName, "url", remoteURL)

	cmd := exec.CommandContext(ctx, m.gitBinary, "clone", remoteURL, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		m.log.Error("Failed to clone repository",
			"repo", repoName,
			"err", err,
			"stderr", strings.TrimSpace(stderr.String()))
		return false
	}
	return true
}

// RemoveAll clears every workspace under the root with the same tolerant
// removal as EnsureClean, continuing past individual failures. The
// aggregated failures come back as a single error for the caller to log.
func (m *Manager) RemoveAll(ctx context.Context) error {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read workspace root %s: %w", m.baseDir, err)
	}

	var errs *multierror.Error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !m.EnsureClean(ctx, entry.Name()) {
			errs = multierror.Append(errs, fmt.Errorf("workspace %q was not fully removed", entry.Name()))
		}
	}
	return errs.ErrorOrNil()
}

// clearWriteProtection makes every file and directory under root writable
// so removal does not trip over read-only objects left by tooling.
// Failures are ignored; removal itself reports the outcome.
func clearWriteProtection(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mode := info.Mode().Perm() | 0o200
		if d.IsDir() {
			mode |= 0o300
		}
		_ = os.Chmod(path, mode)
		return nil
	})
}
