// Package report writes tournament results as tab-separated analysis files,
// plus the JSON summary and fusion reports that sit next to them.
package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"seedcontest/internal/model"
	"seedcontest/internal/tournament"
)

const Footer = "# analysis complete"

type Field struct {
	Key   string
	Value string
}

// Header is the comment block written before the first score row.
type Header struct {
	Title  string
	Fields []Field
	Note   string
}

// HeaderFor describes one tournament the way the analysis files always
// have: environment factors, trial settings, then the snapshot location.
func HeaderFor(policy tournament.Policy, cfg tournament.Config, snapshotPath string) Header {
	h := Header{Note: "Note the results will change slightly each time this runs."}
	fields := []Field{
		{Key: "width_factor", Value: FormatScore(cfg.Environment.WidthFactor, false)},
		{Key: "height_factor", Value: FormatScore(cfg.Environment.HeightFactor, false)},
		{Key: "time_factor", Value: FormatScore(cfg.Environment.TimeFactor, false)},
		{Key: "num_trials", Value: strconv.Itoa(cfg.NumTrials)},
	}
	switch p := policy.(type) {
	case tournament.WinCount:
		h.Title = "Compare Winners"
		fields = append(fields, Field{Key: "num_wins", Value: strconv.Itoa(p.NumWins)})
	default:
		h.Title = "Compare Past Winners"
		fields = append(fields, Field{Key: "num_top", Value: strconv.Itoa(cfg.NumTop)})
	}
	h.Fields = append(fields, Field{Key: "path", Value: snapshotPath})
	return h
}

// FileName returns where a tournament's TSV goes inside analysisDir. The
// directory's own base name is part of the file name, or runID when the
// directory has none (".", "/").
func FileName(policy tournament.Policy, numTop, numTrials int, analysisDir, runID string) string {
	base := dirLabel(analysisDir, runID)
	var name string
	if policy.Name() == tournament.PolicyWinCount {
		name = fmt.Sprintf("compare-win-count-%s.tsv", base)
	} else {
		name = fmt.Sprintf("compare-past-winners-top%d-try%d-%s.tsv", numTop, numTrials, base)
	}
	return filepath.Join(analysisDir, name)
}

func dirLabel(dir, fallback string) string {
	base := filepath.Base(filepath.Clean(dir))
	if base == "." || base == string(filepath.Separator) {
		return fallback
	}
	return base
}

// FormatScore renders continuous scores with at least one decimal place
// ("0.0", "-0.35") and discrete scores as integers.
func FormatScore(score float64, discrete bool) string {
	if discrete {
		return strconv.FormatInt(int64(math.Round(score)), 10)
	}
	s := strconv.FormatFloat(score, 'f', -1, 64)
	if math.IsInf(score, 0) || math.IsNaN(score) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

// TSVWriter streams one "generation<TAB>score" row per generation and
// flushes after every row so partial results survive a crash.
type TSVWriter struct {
	buf      *bufio.Writer
	closer   io.Closer
	discrete bool
	rows     int
}

func NewTSVWriter(w io.Writer, h Header, discrete bool) (*TSVWriter, error) {
	t := &TSVWriter{buf: bufio.NewWriter(w), discrete: discrete}
	if err := t.writeHeader(h); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTSV creates the file at path, writes the header and returns a
// writer that owns the file.
func CreateTSV(path string, h Header, discrete bool) (*TSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	t, err := NewTSVWriter(f, h, discrete)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

func (t *TSVWriter) writeHeader(h Header) error {
	lines := []string{"# " + h.Title, "#"}
	for _, field := range h.Fields {
		lines = append(lines, fmt.Sprintf("# %s = %s", field.Key, field.Value))
	}
	if h.Note != "" {
		lines = append(lines, "#", "# "+h.Note)
	}
	for _, line := range lines {
		if _, err := t.buf.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return t.buf.Flush()
}

func (t *TSVWriter) WriteScore(score model.GenerationScore) error {
	if _, err := fmt.Fprintf(t.buf, "%d\t%s\n", score.Generation, FormatScore(score.Score, t.discrete)); err != nil {
		return err
	}
	t.rows++
	return t.buf.Flush()
}

func (t *TSVWriter) Rows() int {
	return t.rows
}

// Complete writes the footer. Only call it after a successful run.
func (t *TSVWriter) Complete() error {
	if _, err := t.buf.WriteString(Footer + "\n"); err != nil {
		return err
	}
	return t.buf.Flush()
}

func (t *TSVWriter) Close() error {
	flushErr := t.buf.Flush()
	if t.closer == nil {
		return flushErr
	}
	if err := t.closer.Close(); err != nil {
		return err
	}
	return flushErr
}
