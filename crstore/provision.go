package crstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNoRuns indicates a run directory with no run databases in it.
var ErrNoRuns = errors.New("no run databases")

var runIDEntropy = ulid.DefaultEntropy()

// Provision creates the run directory if needed and a fresh timestamped run
// database inside it, stamped with a unique run id, the start time, and the
// traced program's name.
func Provision(dir, program string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("run_%s.db", now.Format("20060102_150405")))

	s, err := Open(path)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	for key, value := range map[string]string{
		"run_id":     ulid.MustNew(ulid.Timestamp(now), runIDEntropy).String(),
		"started_at": now.UTC().Format(time.RFC3339Nano),
		"program":    program,
	} {
		if err := s.setMeta(ctx, key, value); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// List returns the run database paths under dir, oldest first. Timestamped
// filenames make lexical order chronological.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "run_*.db"))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	sort.Strings(matches)

	return matches, nil
}

// Latest returns the path of the most recent run database under dir. It
// returns an error wrapping [ErrNoRuns] when dir holds no run databases.
func Latest(dir string) (string, error) {
	paths, err := List(dir)
	if err != nil {
		return "", err
	}

	if len(paths) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoRuns, dir)
	}

	return paths[len(paths)-1], nil
}
