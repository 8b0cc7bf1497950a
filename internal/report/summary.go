package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"seedcontest/internal/model"
)

// Summary is the machine-readable companion of a TSV report.
type Summary struct {
	TournamentID   string                  `json:"tournament_id"`
	RunID          string                  `json:"run_id"`
	Policy         string                  `json:"policy"`
	SnapshotDir    string                  `json:"snapshot_dir"`
	NumGenerations int                     `json:"num_generations"`
	NumTop         int                     `json:"num_top"`
	NumTrials      int                     `json:"num_trials"`
	NumWins        int                     `json:"num_wins,omitempty"`
	Threshold      float64                 `json:"threshold,omitempty"`
	WidthFactor    float64                 `json:"width_factor"`
	HeightFactor   float64                 `json:"height_factor"`
	TimeFactor     float64                 `json:"time_factor"`
	Contests       int                     `json:"contests"`
	Complete       bool                    `json:"complete"`
	CreatedAtUTC   string                  `json:"created_at_utc"`
	Scores         []model.GenerationScore `json:"scores"`
}

// SummaryPath puts the summary next to the TSV at tsvPath.
func SummaryPath(tsvPath string) string {
	return strings.TrimSuffix(tsvPath, filepath.Ext(tsvPath)) + ".summary.json"
}

func WriteSummary(path string, summary Summary) error {
	if summary.Scores == nil {
		summary.Scores = []model.GenerationScore{}
	}
	return writeJSON(path, summary)
}

func ReadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
