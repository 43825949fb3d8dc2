// launcher_test.go exercises child-process launching and pumping with
// harmless shell commands standing in for the log-fetch collaborator.
package stream

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/rightscale/kubetail/internal/config"
	"github.com/rightscale/kubetail/internal/resolve"
)

func shellBuilder(script string) CommandBuilder {
	return func(ctx context.Context, ref resolve.ContainerRef) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
}

func testRef(pod string) resolve.ContainerRef {
	return resolve.ContainerRef{Target: resolve.Target{Namespace: "default", Pod: pod}, Container: "main"}
}

func collectLines(t *testing.T, launcher *Launcher, h *Handle) []Line {
	t.Helper()
	sink := make(chan Line, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = launcher.Pump(context.Background(), h, sink)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("pump did not finish")
	}
	close(sink)
	var lines []Line
	for line := range sink {
		lines = append(lines, line)
	}
	return lines
}

func TestLaunchAndPumpDeliversLines(t *testing.T) {
	reaper := NewReaper(logr.Discard())
	launcher := &Launcher{
		Build:  shellBuilder(`printf 'one\ntwo\n'`),
		Reaper: reaper,
		Log:    logr.Discard(),
	}
	h, err := launcher.Launch(context.Background(), Assignment{Ref: testRef("web-1"), Color: 2})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	lines := collectLines(t, launcher, h)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if lines[0].Text != "one" || lines[1].Text != "two" {
		t.Fatalf("per-source order lost: %v", lines)
	}
	for _, line := range lines {
		if line.Label != "web-1 main" || line.Color != 2 {
			t.Fatalf("line not tagged with its source: %+v", line)
		}
	}
	// Children have exited by now; teardown must stay quiet.
	reaper.Shutdown()
}

func TestLaunchMergesStderrIntoFeed(t *testing.T) {
	reaper := NewReaper(logr.Discard())
	launcher := &Launcher{
		Build:  shellBuilder(`echo oops >&2`),
		Reaper: reaper,
		Log:    logr.Discard(),
	}
	h, err := launcher.Launch(context.Background(), Assignment{Ref: testRef("web-1"), Color: NoColor})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	lines := collectLines(t, launcher, h)
	if len(lines) != 1 || lines[0].Text != "oops" {
		t.Fatalf("stderr did not surface in the feed: %v", lines)
	}
	reaper.Shutdown()
}

func TestPumpAppliesProjection(t *testing.T) {
	projection, err := ParseProjection(".msg")
	if err != nil {
		t.Fatalf("ParseProjection returned error: %v", err)
	}
	reaper := NewReaper(logr.Discard())
	launcher := &Launcher{
		Build:      shellBuilder(`printf '{"msg":"structured"}\nnot json\n'`),
		Projection: projection,
		Reaper:     reaper,
		Log:        logr.Discard(),
	}
	h, err := launcher.Launch(context.Background(), Assignment{Ref: testRef("web-1"), Color: NoColor})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	lines := collectLines(t, launcher, h)
	if len(lines) != 1 || lines[0].Text != "structured" {
		t.Fatalf("projection not applied (non-JSON must be skipped): %v", lines)
	}
	reaper.Shutdown()
}

func TestLaunchRegistersHandleBeforeReading(t *testing.T) {
	reaper := NewReaper(logr.Discard())
	launcher := &Launcher{
		Build:  shellBuilder(`sleep 30`),
		Reaper: reaper,
		Log:    logr.Discard(),
	}
	if _, err := launcher.Launch(context.Background(), Assignment{Ref: testRef("web-1"), Color: 0}); err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	reaper.mu.Lock()
	tracked := len(reaper.handles)
	reaper.mu.Unlock()
	if tracked != 1 {
		t.Fatalf("expected 1 tracked handle, got %d", tracked)
	}
	reaper.Shutdown()
}

func TestLaunchFailureIsReported(t *testing.T) {
	reaper := NewReaper(logr.Discard())
	launcher := &Launcher{
		Build: func(ctx context.Context, ref resolve.ContainerRef) *exec.Cmd {
			return exec.CommandContext(ctx, "kubetail-test-no-such-binary")
		},
		Reaper: reaper,
		Log:    logr.Discard(),
	}
	if _, err := launcher.Launch(context.Background(), Assignment{Ref: testRef("web-1"), Color: 0}); err == nil {
		t.Fatalf("expected launch error for missing binary")
	}
}

func TestKubectlCommandArguments(t *testing.T) {
	opts := config.NewOptions()
	opts.Timestamps = true
	opts.Previous = true
	build := KubectlCommand(opts)
	ref := resolve.ContainerRef{
		Target:    resolve.Target{Context: "prod", Namespace: "payments", Pod: "api-1"},
		Container: "app",
	}
	cmd := build(context.Background(), ref)
	got := strings.Join(cmd.Args, " ")
	for _, want := range []string{
		"--context prod",
		"--namespace payments",
		"logs api-1",
		"--container app",
		"--follow",
		fmt.Sprintf("--since=%ds", 10),
		"--tail=-1",
		"--timestamps",
		"--previous",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("kubectl args missing %q: %q", want, got)
		}
	}
}
