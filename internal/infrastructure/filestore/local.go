// Package filestore moves receipt files inside the storage root.
//
// Paths handed to the store are slash-separated and relative to the root,
// matching what the organizer computes. Moves never overwrite: when the
// destination is taken by another file a numeric suffix is added and the
// final path is returned.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrSourceMissing means the file to move does not exist. Not retried.
	ErrSourceMissing = errors.New("source file missing")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
	// ErrInvalidPath rejects paths that do not name a file under the root.
	ErrInvalidPath = errors.New("invalid receipt path")
)

// RetryOptions configures the backoff used for moves.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions retries three times starting at 100ms.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// maxSuffix bounds collision probing.
const maxSuffix = 1000

// LocalStore moves files on the local filesystem.
type LocalStore struct {
	root   string
	retry  RetryOptions
	logger *slog.Logger
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root string, retry RetryOptions, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{root: root, retry: retry, logger: logger}
}

// Root returns the storage root.
func (s *LocalStore) Root() string {
	return s.root
}

// Move relocates from to to and returns the path the file ended up at.
// Moving a file onto itself is a no-op.
func (s *LocalStore) Move(ctx context.Context, from, to string) (string, error) {
	from, err := cleanPath(from)
	if err != nil {
		return "", err
	}
	to, err = cleanPath(to)
	if err != nil {
		return "", err
	}
	if from == to {
		return to, nil
	}

	src := s.resolve(from)

	var final string
	err = withRetry(ctx, s.logger, s.retry, func() error {
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				return &permanentError{err: fmt.Errorf("%s: %w", from, ErrSourceMissing)}
			}
			return err
		}

		dest, err := s.freePath(from, to)
		if err != nil {
			return err
		}
		if dest == from {
			final = from
			return nil
		}

		abs := s.resolve(dest)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return err
		}
		if err := renameOrCopy(src, abs); err != nil {
			return err
		}

		final = dest
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("moved receipt file", "from", from, "to", final)
	return final, nil
}

// freePath returns to, or to with a numeric suffix when another file already
// occupies it. If the probe lands on from, the file is already in place.
func (s *LocalStore) freePath(from, to string) (string, error) {
	ext := path.Ext(to)
	base := strings.TrimSuffix(to, ext)

	candidate := to
	for n := 2; n <= maxSuffix; n++ {
		if candidate == from {
			return from, nil
		}
		if _, err := os.Stat(s.resolve(candidate)); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
		candidate = base + "_" + strconv.Itoa(n) + ext
	}
	return "", fmt.Errorf("no free name for %s", to)
}

// cleanPath normalizes a slash path relative to the root. ".." segments are
// clamped at the root.
func cleanPath(rel string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("%q: %w", rel, ErrInvalidPath)
	}
	return clean[1:], nil
}

func (s *LocalStore) resolve(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func renameOrCopy(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	// Rename fails across devices; fall back to copy and remove.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// permanentError wraps an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// withRetry executes an operation with exponential backoff.
func withRetry(ctx context.Context, logger *slog.Logger, opts RetryOptions, operation func() error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 2 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		logger.Warn("file move failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}

	return ErrMaxRetries
}
