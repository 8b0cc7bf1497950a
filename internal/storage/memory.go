package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"seedcontest/internal/model"
)

type populationKey struct {
	runID      string
	generation int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	populations map[populationKey]model.Population
	tournaments map[string]model.TournamentRecord
	order       []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.populations = make(map[populationKey]model.Population)
	s.tournaments = make(map[string]model.TournamentRecord)
	s.order = nil
	return nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, population model.Population) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.populations[populationKey{population.RunID, population.Generation}] = clonePopulation(population)
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, runID string, generation int) (model.Population, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.Population{}, false, errNotInitialized
	}
	population, ok := s.populations[populationKey{runID, generation}]
	if !ok {
		return model.Population{}, false, nil
	}
	return clonePopulation(population), true, nil
}

func (s *MemoryStore) ListGenerations(_ context.Context, runID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	generations := make([]int, 0)
	for key := range s.populations {
		if key.runID == runID {
			generations = append(generations, key.generation)
		}
	}
	sort.Ints(generations)
	return generations, nil
}

func (s *MemoryStore) SaveTournament(_ context.Context, record model.TournamentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if _, exists := s.tournaments[record.ID]; !exists {
		s.order = append(s.order, record.ID)
	}
	record.Scores = append([]model.GenerationScore(nil), record.Scores...)
	s.tournaments[record.ID] = record
	return nil
}

func (s *MemoryStore) GetTournament(_ context.Context, id string) (model.TournamentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.TournamentRecord{}, false, errNotInitialized
	}
	record, ok := s.tournaments[id]
	if !ok {
		return model.TournamentRecord{}, false, nil
	}
	record.Scores = append([]model.GenerationScore(nil), record.Scores...)
	return record, true, nil
}

// ListTournaments returns the run's tournaments in insertion order. An empty
// run id lists every tournament.
func (s *MemoryStore) ListTournaments(_ context.Context, runID string) ([]model.TournamentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	records := make([]model.TournamentRecord, 0, len(s.order))
	for _, id := range s.order {
		record := s.tournaments[id]
		if runID != "" && record.RunID != runID {
			continue
		}
		record.Scores = append([]model.GenerationScore(nil), record.Scores...)
		records = append(records, record)
	}
	return records, nil
}

var errNotInitialized = errors.New("store is not initialized")

func clonePopulation(population model.Population) model.Population {
	if population.Seeds == nil {
		return population
	}
	seeds := make([]model.Seed, len(population.Seeds))
	for i, seed := range population.Seeds {
		if seed.Cells != nil {
			cells := make([][]int, len(seed.Cells))
			for x := range seed.Cells {
				cells[x] = append([]int(nil), seed.Cells[x]...)
			}
			seed.Cells = cells
		}
		seeds[i] = seed
	}
	population.Seeds = seeds
	return population
}
