package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/shared/types"
)

// ExitFunc is invoked when an owned browser process exits without the
// supervisor having been asked to stop it. err is nil for a clean exit
// (e.g. the operator closed the window inside the VNC session).
type ExitFunc func(instanceID string, err error)

// Config holds supervisor settings.
type Config struct {
	Binary  string // browser executable, e.g. firefox-esr
	Display string // X display shared by all instances, e.g. ":1"
	LogPath string // shared stdout/stderr sink for browser processes
}

// Handle tracks one owned browser process.
type Handle struct {
	InstanceID  string
	ProfilePath string
	PID         int

	cmd      *exec.Cmd
	done     chan struct{}
	stopping atomic.Bool
}

// Supervisor starts, stops and observes per-instance browser processes.
//
// Processes started by a previous admin run are not owned (no Handle) but
// remain observable and stoppable: liveness falls back to pgrep keyed by
// the profile path, termination to pkill. The profile path is unique per
// instance and appears verbatim in the browser command line, which makes
// it a reliable match key.
type Supervisor struct {
	cfg    Config
	logger *logging.Logger

	mu      sync.Mutex
	handles map[string]*Handle // by instance id

	onExit ExitFunc
}

// New creates a supervisor.
func New(cfg Config, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		handles: make(map[string]*Handle),
	}
}

// OnExit registers the unexpected-exit callback. Must be called before
// the first Start.
func (s *Supervisor) OnExit(fn ExitFunc) {
	s.onExit = fn
}

// Start launches the browser bound to the instance's profile. It returns
// once the process is spawned; it does not wait for the browser to finish
// initializing.
func (s *Supervisor) Start(ctx context.Context, inst *types.Instance) (*Handle, error) {
	s.mu.Lock()
	if existing, ok := s.handles[inst.ID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	args := []string{"--no-remote", "--profile", inst.ProfilePath}
	if inst.HomeURL != "" {
		args = append(args, inst.HomeURL)
	}

	logFile, err := s.openLog()
	if err != nil {
		return nil, &types.ProcessError{InstanceID: inst.ID, Op: "start", Err: err}
	}

	cmd := exec.Command(s.cfg.Binary, args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+s.cfg.Display)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, &types.ProcessError{InstanceID: inst.ID, Op: "start", Err: err}
	}

	handle := &Handle{
		InstanceID:  inst.ID,
		ProfilePath: inst.ProfilePath,
		PID:         cmd.Process.Pid,
		cmd:         cmd,
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	s.handles[inst.ID] = handle
	s.mu.Unlock()

	s.logger.Info("browser started",
		zap.String("instance_id", inst.ID),
		zap.Int("pid", handle.PID),
	)

	go s.wait(handle, logFile)

	return handle, nil
}

// wait reaps the process and dispatches the exit callback.
func (s *Supervisor) wait(handle *Handle, logFile *os.File) {
	err := handle.cmd.Wait()
	logFile.Close()
	close(handle.done)

	s.mu.Lock()
	if s.handles[handle.InstanceID] == handle {
		delete(s.handles, handle.InstanceID)
	}
	s.mu.Unlock()

	if handle.stopping.Load() {
		return
	}

	s.logger.Warn("browser exited unexpectedly",
		zap.String("instance_id", handle.InstanceID),
		zap.Int("pid", handle.PID),
		zap.Error(err),
	)
	if s.onExit != nil {
		s.onExit(handle.InstanceID, err)
	}
}

// Stop requests graceful termination, escalating to SIGKILL once the
// grace timeout elapses. It returns when the process is gone. Stopping an
// instance that is not running is a no-op.
func (s *Supervisor) Stop(ctx context.Context, inst *types.Instance, grace time.Duration) error {
	s.mu.Lock()
	handle := s.handles[inst.ID]
	s.mu.Unlock()

	if handle != nil {
		return s.stopOwned(ctx, handle, grace)
	}
	return s.stopUnowned(ctx, inst, grace)
}

func (s *Supervisor) stopOwned(ctx context.Context, handle *Handle, grace time.Duration) error {
	handle.stopping.Store(true)

	if err := handle.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already reaped between the map lookup and the signal.
		select {
		case <-handle.done:
			return nil
		default:
		}
		return &types.ProcessError{InstanceID: handle.InstanceID, Op: "stop", Err: err}
	}

	select {
	case <-handle.done:
		return nil
	case <-time.After(grace):
	case <-ctx.Done():
	}

	s.logger.Warn("graceful stop timed out, killing",
		zap.String("instance_id", handle.InstanceID),
		zap.Int("pid", handle.PID),
	)
	_ = handle.cmd.Process.Kill()
	<-handle.done
	return nil
}

func (s *Supervisor) stopUnowned(ctx context.Context, inst *types.Instance, grace time.Duration) error {
	if !s.matchAlive(ctx, inst.ProfilePath) {
		return nil
	}

	// Processes adopted from a previous admin run: terminate by match on
	// the profile path, the same way the original launcher scripts do.
	_ = exec.CommandContext(ctx, "pkill", "-f", inst.ProfilePath).Run()

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !s.matchAlive(ctx, inst.ProfilePath) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	_ = exec.CommandContext(ctx, "pkill", "-9", "-f", inst.ProfilePath).Run()
	for i := 0; i < 10; i++ {
		if !s.matchAlive(ctx, inst.ProfilePath) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return &types.ProcessError{InstanceID: inst.ID, Op: "stop", Err: fmt.Errorf("process matching %s would not die", inst.ProfilePath)}
}

// IsRunning reports whether a browser process bound to the profile path
// is alive, owned or not.
func (s *Supervisor) IsRunning(ctx context.Context, instanceID, profilePath string) bool {
	s.mu.Lock()
	_, owned := s.handles[instanceID]
	s.mu.Unlock()
	if owned {
		return true
	}
	return s.matchAlive(ctx, profilePath)
}

// CheckDaemon reports whether a process matching the pattern is alive.
// Used by the health endpoint for the session daemons (Xvnc, websockify).
func (s *Supervisor) CheckDaemon(ctx context.Context, pattern string) bool {
	return s.matchAlive(ctx, pattern)
}

func (s *Supervisor) matchAlive(ctx context.Context, pattern string) bool {
	return exec.CommandContext(ctx, "pgrep", "-f", pattern).Run() == nil
}

func (s *Supervisor) openLog() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(s.cfg.LogPath), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(s.cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
