package contest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"seedcontest/internal/model"
)

// ExecOracle resolves each contest by running an external simulator. The
// request is written to the command's stdin as JSON and the outcome is read
// back from stdout.
type ExecOracle struct {
	command string
	args    []string
	timeout time.Duration
}

type execRequest struct {
	SeedA       model.Seed  `json:"seed_a"`
	SeedB       model.Seed  `json:"seed_b"`
	Environment Environment `json:"environment"`
	NumTrials   int         `json:"num_trials"`
}

func NewExecOracle(command string, args []string, timeout time.Duration) (*ExecOracle, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("contest command is required")
	}
	if timeout < 0 {
		return nil, fmt.Errorf("contest timeout must be >= 0, got %v", timeout)
	}
	return &ExecOracle{
		command: command,
		args:    append([]string(nil), args...),
		timeout: timeout,
	}, nil
}

func (o *ExecOracle) Contest(ctx context.Context, a, b model.Seed, env Environment, numTrials int) (Outcome, error) {
	if numTrials <= 0 {
		return Outcome{}, fmt.Errorf("num trials must be > 0, got %d", numTrials)
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(execRequest{SeedA: a, SeedB: b, Environment: env, NumTrials: numTrials})
	if err != nil {
		return Outcome{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.command, o.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Outcome{}, fmt.Errorf("contest %s vs %s: %w: %s", a.ID, b.ID, err, msg)
		}
		return Outcome{}, fmt.Errorf("contest %s vs %s: %w", a.ID, b.ID, err)
	}

	var outcome Outcome
	if err := json.Unmarshal(stdout.Bytes(), &outcome); err != nil {
		return Outcome{}, fmt.Errorf("decode contest outcome %s vs %s: %w", a.ID, b.ID, err)
	}
	if err := outcome.Validate(); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}
