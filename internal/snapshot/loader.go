// Package snapshot resolves the per-generation population snapshots of one
// evolutionary run into an explicit, validated generation -> population
// mapping.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"seedcontest/internal/model"
	"seedcontest/internal/storage"
)

// ErrSnapshotCount reports a run whose snapshot count is not generations+1.
// It usually means an incomplete or corrupted run.
var ErrSnapshotCount = errors.New("snapshot count mismatch")

// Run is every generation of one evolutionary run. Populations[g] holds
// generation g.
type Run struct {
	ID          string
	Dir         string
	Populations []model.Population
}

func (r Run) NumGenerations() int {
	return len(r.Populations) - 1
}

// InferGenerations asks a Source to take the generation count from what it
// holds. Any negative count does the same.
const InferGenerations = -1

// Source loads a run with exactly numGenerations+1 snapshots.
type Source interface {
	Load(ctx context.Context, numGenerations int) (Run, error)
}

// DirSource reads "<prefix>-pickle-<generation>.<ext>" files from a
// directory holding a single run. Mixing runs in one directory is rejected
// only as far as the prefixes disagree.
type DirSource struct {
	Dir string
	Ext string
}

func (s DirSource) Load(ctx context.Context, numGenerations int) (Run, error) {
	ext := normalizeExt(s.Ext)
	names, err := Discover(s.Dir, ext)
	if err != nil {
		return Run{}, err
	}
	if numGenerations < 0 {
		if len(names) == 0 {
			return Run{}, fmt.Errorf("%w: no .%s snapshots in %s", ErrSnapshotCount, ext, s.Dir)
		}
		numGenerations = len(names) - 1
	}
	if len(names) != numGenerations+1 {
		return Run{}, fmt.Errorf("%w: found %d .%s snapshots in %s, want %d", ErrSnapshotCount, len(names), ext, s.Dir, numGenerations+1)
	}

	prefix, files, err := Index(names, numGenerations)
	if err != nil {
		return Run{}, err
	}

	run := Run{ID: prefix, Dir: s.Dir, Populations: make([]model.Population, len(files))}
	for generation, name := range files {
		if err := ctx.Err(); err != nil {
			return Run{}, err
		}
		population, err := ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			return Run{}, err
		}
		if population.Generation == 0 {
			population.Generation = generation
		}
		if population.Generation != generation {
			return Run{}, fmt.Errorf("%s: file name says generation %d, content says %d", name, generation, population.Generation)
		}
		if population.RunID == "" {
			population.RunID = prefix
		}
		run.Populations[generation] = population
	}
	return run, nil
}

// Index maps file names onto generations 0..numGenerations. The run prefix
// comes from the first parseable name. Unparseable names, foreign prefixes,
// out-of-range or duplicate generations and gaps are all reported together.
func Index(names []string, numGenerations int) (string, []string, error) {
	parsed := make([]Name, len(names))
	var errs error
	prefix := ""
	for i, name := range names {
		n, err := ParseName(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		parsed[i] = n
		if prefix == "" {
			prefix = n.Prefix
		}
	}

	files := make([]string, numGenerations+1)
	for i, name := range names {
		n := parsed[i]
		if n.Prefix == "" {
			continue
		}
		switch {
		case n.Prefix != prefix:
			errs = multierr.Append(errs, fmt.Errorf("%s: run prefix %q differs from %q", name, n.Prefix, prefix))
		case n.Generation > numGenerations:
			errs = multierr.Append(errs, fmt.Errorf("%s: generation %d beyond last generation %d", name, n.Generation, numGenerations))
		case files[n.Generation] != "":
			errs = multierr.Append(errs, fmt.Errorf("%s: generation %d already provided by %s", name, n.Generation, files[n.Generation]))
		default:
			files[n.Generation] = name
		}
	}
	for generation, name := range files {
		if name == "" {
			errs = multierr.Append(errs, fmt.Errorf("generation %d: no snapshot", generation))
		}
	}
	if errs != nil {
		return "", nil, fmt.Errorf("index snapshots: %w", errs)
	}
	return prefix, files, nil
}

// StoreSource loads a run previously imported into a store.
type StoreSource struct {
	Store storage.Store
	RunID string
}

func (s StoreSource) Load(ctx context.Context, numGenerations int) (Run, error) {
	generations, err := s.Store.ListGenerations(ctx, s.RunID)
	if err != nil {
		return Run{}, err
	}
	if numGenerations < 0 {
		if len(generations) == 0 {
			return Run{}, fmt.Errorf("%w: no snapshots stored for run %s", ErrSnapshotCount, s.RunID)
		}
		numGenerations = len(generations) - 1
	}
	if len(generations) != numGenerations+1 {
		return Run{}, fmt.Errorf("%w: found %d stored snapshots for run %s, want %d", ErrSnapshotCount, len(generations), s.RunID, numGenerations+1)
	}

	run := Run{ID: s.RunID, Populations: make([]model.Population, numGenerations+1)}
	for generation := 0; generation <= numGenerations; generation++ {
		population, ok, err := s.Store.GetPopulation(ctx, s.RunID, generation)
		if err != nil {
			return Run{}, err
		}
		if !ok {
			return Run{}, fmt.Errorf("run %s: no snapshot for generation %d", s.RunID, generation)
		}
		run.Populations[generation] = population
	}
	return run, nil
}

// WriteDir writes the run back out under the naming convention.
func WriteDir(dir, ext string, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for generation, population := range run.Populations {
		path := filepath.Join(dir, FileName(run.ID, generation, ext))
		if err := WriteFile(path, population); err != nil {
			return err
		}
	}
	return nil
}
