package journal

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"
	"strings"
)

// Available reports whether journalctl exists on this host.
func Available() bool {
	_, err := exec.LookPath("journalctl")
	return err == nil
}

// Source tails the system journal in JSON output mode and hands raw lines
// to a callback, one at a time.
type Source struct {
	args   []string
	logger *slog.Logger
}

func NewSource(logger *slog.Logger) *Source {
	return &Source{
		args:   []string{"journalctl", "-f", "-o", "json"},
		logger: logger,
	}
}

// Run blocks until the journal stream closes or ctx is cancelled. A closed
// stream is a clean termination, not an error.
func (s *Source) Run(ctx context.Context, handle func(line string)) error {
	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	s.logger.Info("journal tail started", "cmd", strings.Join(s.args, " "))

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			handle(line)
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	s.logger.Info("journal stream closed")
	return waitErr
}
