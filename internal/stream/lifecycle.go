package stream

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/go-logr/logr"
)

// Reaper owns every child process spawned by the Launcher and guarantees a
// single, idempotent teardown: each tracked process is killed at most once,
// regardless of whether teardown was triggered by normal completion, a
// signal, or an error exit.
type Reaper struct {
	Log logr.Logger

	mu      sync.Mutex
	handles []*Handle
	once    sync.Once
}

// NewReaper returns an empty reaper.
func NewReaper(log logr.Logger) *Reaper {
	return &Reaper{Log: log}
}

// Track registers a handle for teardown. Called by the Launcher immediately
// after the child starts.
func (r *Reaper) Track(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()
}

// Shutdown terminates every tracked child process. Safe to call from any exit
// path and from multiple goroutines; only the first call does work.
func (r *Reaper) Shutdown() {
	r.once.Do(func() {
		r.mu.Lock()
		handles := make([]*Handle, len(r.handles))
		copy(handles, r.handles)
		r.mu.Unlock()
		r.Log.V(1).Info("terminating log streams", "count", len(handles))
		for _, h := range handles {
			if err := h.terminate(); err != nil && !isTeardownNoise(err) {
				r.Log.Error(err, "terminate log stream", "source", h.Ref.Label())
			}
		}
	})
}

func (h *Handle) terminate() error {
	if h.kill != nil {
		return h.kill()
	}
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil {
		return err
	}
	if h.out != nil {
		_ = h.out.Close()
	}
	return nil
}

// isTeardownNoise filters the secondary errors termination itself provokes:
// children that already exited and pipes torn down mid-write.
func isTeardownNoise(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, fs.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ESRCH) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "process already finished")
}
