package extractor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	// OnStdoutLine, when set, receives each stdout line as it is produced.
	OnStdoutLine func(line string)
}

// Result is what a finished process left behind.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner launches a process and waits for it to exit. A non-zero exit is
// reported through Result.ExitCode; the error is reserved for processes that
// could not be started or were cut short by ctx.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	var pipe io.ReadCloser
	if c.OnStdoutLine != nil {
		p, err := cmd.StdoutPipe()
		if err != nil {
			return Result{}, fmt.Errorf("failed to create %s stdout pipe: %w", c.Name, err)
		}
		pipe = p
	} else {
		cmd.Stdout = &stdout
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	if pipe != nil {
		scanner := bufio.NewScanner(pipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stdout.WriteString(line)
			stdout.WriteByte('\n')
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				c.OnStdoutLine(trimmed)
			}
		}
		// drain so Wait does not block on a full pipe after a scanner error
		_, _ = io.Copy(&stdout, pipe)
	}

	err := cmd.Wait()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("%s failed: %w", c.Name, err)
}
