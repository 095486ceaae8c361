package campaign

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CommandExecutor adapts an external fuzzing harness to the TargetExecutor
// contract. The harness is invoked per target as
//
//	<binary> <args...> <alarm-id>
//
// with the source location and budget passed in the environment, and must
// print a final verdict line on stdout:
//
//	CRASHED <hex-encoded triggering input>
//	REACHED_SAFE
//	NOT_REACHED
//
// Compilation, instrumentation, and mutation all live behind that contract.
type CommandExecutor struct {
	Binary string
	Args   []string
	Log    *zap.Logger
}

// NewCommandExecutor wraps a harness binary.
func NewCommandExecutor(binary string, args []string, log *zap.Logger) *CommandExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandExecutor{Binary: binary, Args: args, Log: log}
}

// Execute runs the harness for one target. The context carries the
// per-target budget; a harness killed by the deadline reports NotReached.
func (e *CommandExecutor) Execute(ctx context.Context, t Target) (Outcome, error) {
	argv := append(append([]string(nil), e.Args...), t.AlarmID)
	cmd := exec.CommandContext(ctx, e.Binary, argv...)
	cmd.Env = append(cmd.Environ(),
		"BAYZZER_TARGET_FILE="+t.Location.File,
		"BAYZZER_TARGET_LINE="+strconv.Itoa(t.Location.Line),
		"BAYZZER_TARGET_BUDGET="+t.Budget.String(),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Outcome{Kind: OutcomeNotReached, Detail: "per-target budget exhausted"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("harness %s: %w (stderr: %s)", e.Binary, err, strings.TrimSpace(stderr.String()))
	}

	return parseVerdict(stdout.String())
}

// parseVerdict extracts the final verdict line from harness output.
func parseVerdict(out string) (Outcome, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "REACHED_SAFE":
			return Outcome{Kind: OutcomeReachedSafe}, nil
		case line == "NOT_REACHED":
			return Outcome{Kind: OutcomeNotReached}, nil
		case strings.HasPrefix(line, "CRASHED"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "CRASHED"))
			input, err := hex.DecodeString(rest)
			if err != nil {
				return Outcome{}, fmt.Errorf("harness verdict %q: bad input encoding: %w", line, err)
			}
			return Outcome{Kind: OutcomeCrashed, Input: input}, nil
		}
	}
	return Outcome{}, fmt.Errorf("harness produced no verdict line")
}
