package storage

import (
	"context"

	"seedcontest/internal/model"
)

// Store persists generation snapshots and the tournaments scored over them.
type Store interface {
	Init(ctx context.Context) error
	SavePopulation(ctx context.Context, population model.Population) error
	GetPopulation(ctx context.Context, runID string, generation int) (model.Population, bool, error)
	ListGenerations(ctx context.Context, runID string) ([]int, error)
	SaveTournament(ctx context.Context, record model.TournamentRecord) error
	GetTournament(ctx context.Context, id string) (model.TournamentRecord, bool, error)
	ListTournaments(ctx context.Context, runID string) ([]model.TournamentRecord, error)
}
