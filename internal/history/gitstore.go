package history

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/warrenhq/warren/pkg/fleet"
)

const snapshotFileName = "registry.yaml"

// GitStore versions registry snapshots in a real git repository, shelling
// out to the git binary. One snapshot file is rewritten and committed per
// mutation, so `git log` in the store directory is the registry's audit
// trail.
type GitStore struct {
	dir    string
	author string
	email  string
}

// NewGitStore opens (initializing if needed) a git repository at dir.
// Returns an error if the git binary is not on PATH.
func NewGitStore(dir, author, email string) (*GitStore, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	if author == "" {
		author = "warren"
	}
	if email == "" {
		email = "warren@localhost"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &GitStore{dir: dir, author: author, email: email}

	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if _, err := s.git(context.Background(), "init", "--quiet"); err != nil {
			return nil, fmt.Errorf("failed to init git repository: %w", err)
		}
	}

	return s, nil
}

// Commit writes the snapshot file and commits it.
func (s *GitStore) Commit(ctx context.Context, snapshot []byte, message string) (string, error) {
	path := filepath.Join(s.dir, snapshotFileName)
	if err := os.WriteFile(path, snapshot, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	if _, err := s.git(ctx, "add", snapshotFileName); err != nil {
		return "", fmt.Errorf("failed to stage snapshot: %w", err)
	}

	// --allow-empty keeps the one-commit-per-mutation contract even when a
	// mutation produced a byte-identical snapshot.
	if _, err := s.git(ctx, "commit", "--quiet", "--allow-empty", "-m", message); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}

	hash, err := s.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	return strings.TrimSpace(hash), nil
}

// Checkout returns the snapshot bytes at the given commit. Abbreviated
// hashes are accepted (git resolves unique prefixes).
func (s *GitStore) Checkout(ctx context.Context, hash string) ([]byte, error) {
	out, err := s.git(ctx, "show", fmt.Sprintf("%s:%s", hash, snapshotFileName))
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", hash, fleet.ErrNotFound)
	}
	return []byte(out), nil
}

// Log returns commits newest first.
func (s *GitStore) Log(ctx context.Context, limit int) ([]fleet.Commit, error) {
	// Empty repository: no HEAD yet, no commits.
	if _, err := s.git(ctx, "rev-parse", "--verify", "HEAD"); err != nil {
		return nil, nil
	}

	args := []string{"log", "--format=%H%x1f%s%x1f%an%x1f%aI"}
	if limit > 0 {
		args = append(args, fmt.Sprintf("-n%d", limit))
	}

	out, err := s.git(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	var commits []fleet.Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x1f")
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed log line: %q", line)
		}
		ts, err := time.Parse(time.RFC3339, parts[3])
		if err != nil {
			return nil, fmt.Errorf("malformed commit timestamp %q: %w", parts[3], err)
		}
		commits = append(commits, fleet.Commit{
			Hash:      parts[0],
			Message:   parts[1],
			Author:    parts[2],
			Timestamp: ts,
		})
	}

	return commits, nil
}

// git runs a git command in the store directory and returns stdout.
func (s *GitStore) git(ctx context.Context, args ...string) (string, error) {
	full := append([]string{
		"-c", "user.name=" + s.author,
		"-c", "user.email=" + s.email,
	}, args...)

	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = s.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (%s)", args[0], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
