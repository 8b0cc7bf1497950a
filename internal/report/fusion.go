package report

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
)

var fusionLine = regexp.MustCompile(`Seed 0 fitness \(s0\): (\d\.\d+)\s+Seed 1 fitness \(s1\): (\d\.\d+)\s+Fusion fitness \(s4\): (\d\.\d+)\s+`)

// FusionEvent is one fusion recorded in an evolution log: the fitness of
// both parents and of the fused seed.
type FusionEvent struct {
	Line    int
	Seed0   float64
	Seed1   float64
	Fusion  float64
	Literal [3]string
}

// ParseFusion scans an evolution log for fusion events. Lines that do not
// describe a fusion are skipped.
func ParseFusion(r io.Reader) ([]FusionEvent, error) {
	var events []FusionEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		m := fusionLine.FindStringSubmatch(scanner.Text() + "\n")
		if m == nil {
			continue
		}
		event := FusionEvent{Line: line, Literal: [3]string{m[1], m[2], m[3]}}
		var err error
		if event.Seed0, err = strconv.ParseFloat(m[1], 64); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if event.Seed1, err = strconv.ParseFloat(m[2], 64); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if event.Fusion, err = strconv.ParseFloat(m[3], 64); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// WriteFusion writes one "s0<TAB>s1<TAB>s4" row per event, keeping the
// numbers exactly as they appeared in the log.
func WriteFusion(w io.Writer, events []FusionEvent) error {
	buf := bufio.NewWriter(w)
	header := []string{
		"# Report Fusion",
		"#",
		"# Format: <seed 0 fitness> <tab> <seed 1 fitness> <tab> <fusion fitness>",
	}
	for _, line := range header {
		if _, err := buf.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	for _, event := range events {
		if _, err := fmt.Fprintf(buf, "%s\t%s\t%s\n", event.Literal[0], event.Literal[1], event.Literal[2]); err != nil {
			return err
		}
	}
	if _, err := buf.WriteString("# report complete\n"); err != nil {
		return err
	}
	return buf.Flush()
}

// FusionFileName returns report-fusion-<base>.tsv inside analysisDir, with
// runID standing in for a directory without a base name.
func FusionFileName(analysisDir, runID string) string {
	base := dirLabel(analysisDir, runID)
	return filepath.Join(analysisDir, fmt.Sprintf("report-fusion-%s.tsv", base))
}

// LogFileName is the evolution log written alongside a run's snapshots.
func LogFileName(dir, runPrefix string) string {
	return filepath.Join(dir, runPrefix+".txt")
}
