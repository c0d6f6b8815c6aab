package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/ports"
)

var ErrUnavailable = errors.New("pass command unavailable")

const notInStore = "is not in the password store"

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

// Store keeps secrets in pass(1). The secret sits on the first line of an entry;
// lines below it are metadata and are ignored.
type Store struct {
	run runFunc
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPassCommand}
}

// CommandError is a failed pass invocation. It matches domain.ErrSecretNotFound when
// pass reported a missing entry, and ErrUnavailable when pass is not installed.
type CommandError struct {
	Op     string
	Key    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("pass %s %q: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("pass %s %q: %v: %s", e.Op, e.Key, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() []error {
	if e.Missing() {
		return []error{e.Err, domain.ErrSecretNotFound}
	}

	return []error{e.Err}
}

func (e *CommandError) Missing() bool {
	return strings.Contains(e.Stderr, notInStore)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	_, err := s.invoke(ctx, "put", key, value+"\n", "insert", "-m", "-f", key)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	stdout, err := s.invoke(ctx, "get", key, "", "show", key)
	if err != nil {
		return "", err
	}

	secret, _, _ := strings.Cut(stdout, "\n")
	return strings.TrimSuffix(secret, "\r"), nil
}

// Delete removes the entry. A missing entry is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.invoke(ctx, "delete", key, "", "rm", "-f", key)

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Missing() {
		return nil
	}

	return err
}

func (s *Store) invoke(ctx context.Context, op, key, input string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stdout, stderr, err := s.run(ctx, input, args...)
	if err != nil {
		return "", &CommandError{Op: op, Key: key, Stderr: stderr, Err: err}
	}

	return stdout, nil
}

func runPassCommand(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath("pass")
	if errors.Is(err, exec.ErrNotFound) {
		return "", "", ErrUnavailable
	}
	if err != nil {
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}
