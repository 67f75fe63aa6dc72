package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunCommand runs command through the shell and waits for it. stdout and
// stderr default to the parent's streams. A non-zero exit is an error.
func RunCommand(ctx context.Context, command string, stdout, stderr io.Writer) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("empty command")
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	cmd := shellCommand(ctx, command)
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("command failed with exit code %d", exitErr.ExitCode())
		}
		return fmt.Errorf("running %q: %w", command, err)
	}
	return nil
}

// Process is a long-running child started in its own process group.
type Process struct {
	cmd     *exec.Cmd
	pumps   *errgroup.Group
	done    chan struct{}
	waitErr error
	logger  *zap.Logger
}

// StartPreview launches the preview server command with PORT set. Stdout
// lines announcing the server address and every stderr line are logged.
func StartPreview(command string, port int, logger *zap.Logger) (*Process, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Not tied to a context: Stop owns the shutdown sequence.
	cmd := shellCommand(context.Background(), command)
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(port))
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting preview server: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		pumps:  &errgroup.Group{},
		done:   make(chan struct{}),
		logger: logger,
	}
	p.pumps.Go(func() error {
		return pumpLines(stdout, func(line string) {
			if strings.Contains(line, "Local:") || strings.Contains(line, "Network:") {
				logger.Info(strings.TrimSpace(line))
			} else {
				logger.Debug("preview", zap.String("stdout", line))
			}
		})
	})
	p.pumps.Go(func() error {
		return pumpLines(stderr, func(line string) {
			logger.Warn("preview", zap.String("stderr", line))
		})
	})

	go func() {
		// Pipes must be drained before Wait closes them.
		if err := p.pumps.Wait(); err != nil {
			logger.Debug("preview output", zap.Error(err))
		}
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// Wait blocks until the process has been reaped and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Stop sends SIGTERM to the process group, waits up to grace, then sends
// SIGKILL if the group is still alive. It reports whether the kill was
// needed and always waits for the process to be reaped.
func (p *Process) Stop(grace time.Duration) (forced bool) {
	select {
	case <-p.done:
		return false
	default:
	}

	if err := terminate(p.cmd); err != nil {
		p.logger.Debug("SIGTERM", zap.Error(err))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return false
	case <-timer.C:
	}

	if err := kill(p.cmd); err != nil {
		p.logger.Debug("SIGKILL", zap.Error(err))
	}
	<-p.done
	return true
}

func pumpLines(r io.Reader, emit func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); strings.TrimSpace(line) != "" {
			emit(line)
		}
	}
	return sc.Err()
}
