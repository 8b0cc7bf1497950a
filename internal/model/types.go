package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version" yaml:"schema_version"`
	CodecVersion  int `json:"codec_version" yaml:"codec_version"`
}

// Seed is one evolved pattern. Scoring never looks inside it; seeds are only
// ranked and handed to a contest oracle.
type Seed struct {
	ID        string  `json:"id" yaml:"id"`
	XSpan     int     `json:"xspan" yaml:"xspan"`
	YSpan     int     `json:"yspan" yaml:"yspan"`
	Cells     [][]int `json:"cells,omitempty" yaml:"cells,omitempty"`
	Fitness   float64 `json:"fitness" yaml:"fitness"`
	BirthType string  `json:"birth_type,omitempty" yaml:"birth_type,omitempty"`
}

// Population is the ranked elite saved for one generation. Seeds[0] is the
// best seed of the generation.
type Population struct {
	VersionedRecord `yaml:",inline"`
	RunID           string `json:"run_id" yaml:"run_id"`
	Generation      int    `json:"generation" yaml:"generation"`
	Seeds           []Seed `json:"seeds" yaml:"seeds"`
}

// Top returns the first n seeds of the population.
func (p Population) Top(n int) []Seed {
	if n > len(p.Seeds) {
		n = len(p.Seeds)
	}
	if n < 0 {
		n = 0
	}
	return p.Seeds[:n]
}

type GenerationScore struct {
	Generation int     `json:"generation"`
	Score      float64 `json:"score"`
	Contests   int     `json:"contests"`
}

// TournamentRecord is the history entry of one scoring pass over a run.
type TournamentRecord struct {
	VersionedRecord
	ID             string            `json:"id"`
	RunID          string            `json:"run_id"`
	Policy         string            `json:"policy"`
	NumGenerations int               `json:"num_generations"`
	NumTop         int               `json:"num_top"`
	NumTrials      int               `json:"num_trials"`
	NumWins        int               `json:"num_wins,omitempty"`
	Workers        int               `json:"workers"`
	CreatedAtUTC   string            `json:"created_at_utc"`
	Scores         []GenerationScore `json:"scores"`
}
