package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/go-logr/logr"

	"github.com/rightscale/kubetail/internal/config"
	"github.com/rightscale/kubetail/internal/resolve"
)

const (
	scannerInitial = 64 * 1024
	scannerMax     = 1024 * 1024
)

// Line is one log line arriving from a source, tagged for rendering.
type Line struct {
	Label string
	Color int
	Text  string
}

// Handle tracks one running log-fetch child process. It is owned by the
// Launcher until its pump starts reading, and by the Reaper for termination.
type Handle struct {
	Ref   resolve.ContainerRef
	Color int

	cmd  *exec.Cmd
	out  io.ReadCloser
	kill func() error
}

// CommandBuilder constructs the collaborator's log-fetch command for one
// source. Split out so tests can substitute a harmless command.
type CommandBuilder func(ctx context.Context, ref resolve.ContainerRef) *exec.Cmd

// KubectlCommand builds the kubectl invocation for a source: a continuous
// follow stream scoped by context and namespace, parameterized by the
// configured recency window, tail count, and timestamp inclusion.
func KubectlCommand(opts *config.Options) CommandBuilder {
	return func(ctx context.Context, ref resolve.ContainerRef) *exec.Cmd {
		var args []string
		if ref.Target.Context != "" {
			args = append(args, "--context", ref.Target.Context)
		}
		if ref.Target.Namespace != "" {
			args = append(args, "--namespace", ref.Target.Namespace)
		}
		args = append(args, "logs", ref.Target.Pod, "--container", ref.Container, "--follow")
		if opts.Since > 0 {
			args = append(args, fmt.Sprintf("--since=%ds", int64(opts.Since.Seconds())))
		}
		args = append(args, fmt.Sprintf("--tail=%d", opts.TailLines))
		if opts.Timestamps {
			args = append(args, "--timestamps")
		}
		if opts.Previous {
			args = append(args, "--previous")
		}
		return exec.CommandContext(ctx, "kubectl", args...)
	}
}

// Launcher starts one child process per assignment and pumps its output into
// the shared fan-in channel.
type Launcher struct {
	Build      CommandBuilder
	Projection *Projection
	Reaper     *Reaper
	Log        logr.Logger
}

// Launch starts the child process for the assignment and registers it with
// the reaper before any output is read. Stdout and stderr are merged so a
// failing fetch surfaces in the feed as ordinary lines from that source.
func (l *Launcher) Launch(ctx context.Context, a Assignment) (*Handle, error) {
	cmd := l.Build(ctx, a.Ref)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, fmt.Errorf("start log stream for %s: %w", a.Ref.Label(), err)
	}
	h := &Handle{Ref: a.Ref, Color: a.Color, cmd: cmd, out: pr}
	l.Reaper.Track(h)
	l.Log.V(1).Info("launched log stream",
		"context", a.Ref.Target.Context, "namespace", a.Ref.Target.Namespace,
		"pod", a.Ref.Target.Pod, "container", a.Ref.Container, "pid", cmd.Process.Pid)
	go func() {
		err := cmd.Wait()
		// Closing the write end unblocks the pump; the child's exit status is
		// not an error of the run (see Pump).
		_ = pw.Close()
		if err != nil && ctx.Err() == nil {
			l.Log.V(1).Info("log stream exited", "source", a.Ref.Label(), "error", err.Error())
		}
	}()
	return h, nil
}

// Pump reads lines from the handle into the sink until the source ends or the
// context is cancelled. A source failing mid-run is not fatal to siblings:
// its stderr has already surfaced in the feed and the pump simply drains out.
func (l *Launcher) Pump(ctx context.Context, h *Handle, sink chan<- Line) error {
	scanner := bufio.NewScanner(h.out)
	scanner.Buffer(make([]byte, scannerInitial), scannerMax)
	label := h.Ref.Label()
	for scanner.Scan() {
		text := scanner.Text()
		if l.Projection != nil {
			projected, ok := l.Projection.Apply(text)
			if !ok {
				continue
			}
			text = projected
		}
		select {
		case sink <- Line{Label: label, Color: h.Color, Text: text}:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		l.Log.V(1).Info("log stream read ended", "source", label, "error", err.Error())
	}
	return nil
}
