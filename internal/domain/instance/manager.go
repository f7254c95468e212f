package instance

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firedesk/firedesk/internal/domain/process"
	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/shared/id"
	"github.com/firedesk/firedesk/internal/shared/paths"
	"github.com/firedesk/firedesk/internal/shared/types"
	"github.com/firedesk/firedesk/internal/shared/utils"
)

// Supervisor is the process adapter consumed by the controller.
type Supervisor interface {
	Start(ctx context.Context, inst *types.Instance) (*process.Handle, error)
	Stop(ctx context.Context, inst *types.Instance, grace time.Duration) error
	IsRunning(ctx context.Context, instanceID, profilePath string) bool
	OnExit(fn process.ExitFunc)
}

// Configurator materializes profile directories for instances.
type Configurator interface {
	Provision(inst *types.Instance) error
	ApplyProxy(inst *types.Instance) error
	Remove(inst *types.Instance) error
	Archive(inst *types.Instance, w io.Writer) error
}

// Recorder receives lifecycle metrics. Satisfied by monitoring.Metrics.
type Recorder interface {
	RecordStart()
	RecordStop()
	RecordCrash()
	RecordRestart()
	SetInstanceStats(stats types.Stats)
}

// Options tunes lifecycle behavior.
type Options struct {
	StopTimeout  time.Duration // graceful stop budget before SIGKILL
	RestartMax   int           // crash restarts before giving up
	RestartBase  time.Duration // first backoff delay
	RestartCap   time.Duration // backoff ceiling
	StableWindow time.Duration // uptime after which the retry budget resets
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		StopTimeout:  10 * time.Second,
		RestartMax:   5,
		RestartBase:  time.Second,
		RestartCap:   30 * time.Second,
		StableWindow: time.Minute,
	}
}

// Manager is the lifecycle controller. It is the only writer of observed
// state: every transition for a given instance happens under that
// instance's lock, while different instances transition fully in
// parallel. The store's write lock is separate, so a start for one
// instance only contends with a create for another on the brief
// collection write.
type Manager struct {
	store    *Store
	profiles Configurator
	sup      Supervisor
	layout   paths.Layout
	opts     Options
	logger   *logging.Logger
	metrics  Recorder

	locks sync.Map // instance id -> *sync.Mutex

	retryMu sync.Mutex
	retries map[string]int // crash restarts consumed per instance

	eventMu sync.RWMutex
	subs    map[chan types.Event]struct{}
}

// NewManager creates the controller and registers the crash callback.
func NewManager(store *Store, profiles Configurator, sup Supervisor, layout paths.Layout, opts Options, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		store:    store,
		profiles: profiles,
		sup:      sup,
		layout:   layout,
		opts:     opts,
		logger:   logger,
		retries:  make(map[string]int),
		subs:     make(map[chan types.Event]struct{}),
	}
	sup.OnExit(m.handleUnexpectedExit)
	return m
}

// WithMetrics attaches a metrics recorder.
func (m *Manager) WithMetrics(r Recorder) *Manager {
	m.metrics = r
	return m
}

// lockFor returns the mutex serializing operations on one instance.
// Entries are never removed; the set of ids this system manages is small.
func (m *Manager) lockFor(instanceID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(instanceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// List returns all instances in insertion order.
func (m *Manager) List() []*types.Instance {
	return m.store.List()
}

// Get returns one instance.
func (m *Manager) Get(instanceID string) (*types.Instance, error) {
	return m.store.Get(instanceID)
}

// Stats returns instance counts for health reporting.
func (m *Manager) Stats() types.Stats {
	var stats types.Stats
	for _, inst := range m.store.List() {
		stats.Total++
		switch inst.ObservedState {
		case types.StateRunning:
			stats.Running++
		case types.StateCrashed:
			stats.Crashed++
		case types.StateStarting, types.StateStopping:
			stats.Starting++
		default:
			stats.Stopped++
		}
	}
	return stats
}

// Create validates the request, persists a stopped record and provisions
// its profile directory. The record is rolled back if provisioning fails
// so a failed create leaves no trace.
func (m *Manager) Create(ctx context.Context, req *types.CreateRequest) (*types.Instance, error) {
	if err := utils.ValidateCreate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	instanceID := id.NewInstanceID().String()
	inst := &types.Instance{
		ID:            instanceID,
		Name:          strings.TrimSpace(req.Name),
		ProfilePath:   m.layout.ProfileDir(instanceID),
		Proxy:         normalizeProxy(req.Proxy),
		AutoStart:     req.AutoStart,
		HomeURL:       strings.TrimSpace(req.HomeURL),
		Notes:         req.Notes,
		Version:       1,
		DesiredState:  types.DesiredStopped,
		ObservedState: types.StateStopped,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.Create(inst); err != nil {
		return nil, err
	}
	if err := m.profiles.Provision(inst); err != nil {
		if derr := m.store.Delete(instanceID); derr != nil {
			m.logger.Error("rollback after failed provision",
				zap.String("instance_id", instanceID), zap.Error(derr))
		}
		return nil, err
	}

	m.logger.Info("instance created",
		zap.String("instance_id", instanceID),
		zap.String("name", inst.Name),
	)
	return inst, nil
}

// Update applies a partial edit. Proxy and home-page changes made while
// the instance is running are staged in the store and materialize on the
// next start; Firefox only reads user.js at startup, so rewriting a live
// profile would be both unsafe and ineffective.
func (m *Manager) Update(ctx context.Context, instanceID string, req *types.UpdateRequest) (*types.Instance, error) {
	if err := utils.ValidateUpdate(req); err != nil {
		return nil, err
	}

	mu := m.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	proxyChanged := false
	updated, err := m.store.Update(instanceID, func(inst *types.Instance) error {
		if req.Version != nil && *req.Version != inst.Version {
			return fmt.Errorf("version %d does not match %d: %w", *req.Version, inst.Version, types.ErrConflict)
		}
		if req.Name != nil {
			inst.Name = strings.TrimSpace(*req.Name)
		}
		if req.Proxy != nil {
			next := normalizeProxy(req.Proxy)
			proxyChanged = !proxyEqual(inst.Proxy, next)
			inst.Proxy = next
		}
		if req.AutoStart != nil {
			inst.AutoStart = *req.AutoStart
		}
		if req.HomeURL != nil {
			inst.HomeURL = strings.TrimSpace(*req.HomeURL)
		}
		if req.Notes != nil {
			inst.Notes = *req.Notes
		}
		inst.Version++
		inst.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stopped instances get the new proxy written through immediately;
	// running ones pick it up on the next start transition.
	if proxyChanged && updated.ObservedState == types.StateStopped {
		if err := m.profiles.ApplyProxy(updated); err != nil {
			m.logger.Warn("staged proxy will apply on next start",
				zap.String("instance_id", instanceID), zap.Error(err))
		}
	}

	m.logger.Info("instance updated", zap.String("instance_id", instanceID))
	return updated, nil
}

// Start drives stopped|crashed -> starting -> running. Starting an
// instance that is already running or starting is a no-op returning the
// current record, so concurrent starts spawn exactly one process.
func (m *Manager) Start(ctx context.Context, instanceID string) (*types.Instance, error) {
	mu := m.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	return m.startLocked(ctx, instanceID, false)
}

// startLocked performs the start transition. Callers hold the instance lock.
func (m *Manager) startLocked(ctx context.Context, instanceID string, isRestart bool) (*types.Instance, error) {
	inst, err := m.store.Get(instanceID)
	if err != nil {
		return nil, err
	}

	switch inst.ObservedState {
	case types.StateRunning, types.StateStarting:
		return inst, nil
	case types.StateStopping:
		return nil, fmt.Errorf("instance %s is stopping: %w", instanceID, types.ErrConflict)
	}

	// A browser may already be bound to this profile (previous admin run).
	if m.sup.IsRunning(ctx, inst.ID, inst.ProfilePath) {
		return m.setState(instanceID, types.StateRunning, types.DesiredRunning)
	}

	if _, err := m.setState(instanceID, types.StateStarting, types.DesiredRunning); err != nil {
		return nil, err
	}

	// Staged proxy edits materialize here, before the spawn.
	if err := m.profiles.Provision(inst); err != nil {
		if _, serr := m.setState(instanceID, types.StateStopped, types.DesiredStopped); serr != nil {
			m.logger.Error("state revert failed", zap.String("instance_id", instanceID), zap.Error(serr))
		}
		return nil, err
	}

	if _, err := m.sup.Start(ctx, inst); err != nil {
		if _, serr := m.setState(instanceID, types.StateStopped, types.DesiredStopped); serr != nil {
			m.logger.Error("state revert failed", zap.String("instance_id", instanceID), zap.Error(serr))
		}
		return nil, err
	}

	updated, err := m.setState(instanceID, types.StateRunning, types.DesiredRunning)
	if err != nil {
		return nil, err
	}

	if !isRestart {
		m.resetRetries(instanceID)
	}
	if m.metrics != nil {
		m.metrics.RecordStart()
		m.metrics.SetInstanceStats(m.Stats())
	}
	m.logger.Info("instance running", zap.String("instance_id", instanceID))
	return updated, nil
}

// Stop drives running|starting -> stopping -> stopped. Stopping a stopped
// instance is a no-op. The stop always lands in stopped, graceful or not.
func (m *Manager) Stop(ctx context.Context, instanceID string) (*types.Instance, error) {
	mu := m.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	return m.stopLocked(ctx, instanceID)
}

func (m *Manager) stopLocked(ctx context.Context, instanceID string) (*types.Instance, error) {
	inst, err := m.store.Get(instanceID)
	if err != nil {
		return nil, err
	}

	switch inst.ObservedState {
	case types.StateStopped, types.StateCrashed:
		// Stopping clears any pending crash restart.
		m.resetRetries(instanceID)
		return m.setState(instanceID, types.StateStopped, types.DesiredStopped)
	}

	if _, err := m.setState(instanceID, types.StateStopping, types.DesiredStopped); err != nil {
		return nil, err
	}

	stopErr := m.sup.Stop(ctx, inst, m.opts.StopTimeout)
	if stopErr != nil {
		m.logger.Error("stop escalation failed", zap.String("instance_id", instanceID), zap.Error(stopErr))
	}

	m.resetRetries(instanceID)
	updated, err := m.setState(instanceID, types.StateStopped, types.DesiredStopped)
	if err != nil {
		return nil, err
	}
	if stopErr != nil {
		return updated, stopErr
	}

	if m.metrics != nil {
		m.metrics.RecordStop()
		m.metrics.SetInstanceStats(m.Stats())
	}
	m.logger.Info("instance stopped", zap.String("instance_id", instanceID))
	return updated, nil
}

// Delete removes the record and the profile directory. A running
// instance conflicts unless force is set, in which case it is stopped
// first within the usual bounded timeout.
func (m *Manager) Delete(ctx context.Context, instanceID string, force bool) error {
	mu := m.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := m.store.Get(instanceID)
	if err != nil {
		return err
	}

	switch inst.ObservedState {
	case types.StateStopped, types.StateCrashed:
	default:
		if !force {
			return fmt.Errorf("instance %s is %s: %w", instanceID, inst.ObservedState, types.ErrConflict)
		}
		if _, err := m.stopLocked(ctx, instanceID); err != nil {
			return err
		}
	}

	if err := m.store.Delete(instanceID); err != nil {
		return err
	}
	if err := m.profiles.Remove(inst); err != nil {
		// The record is gone and the id is never reused; an orphan
		// directory is a cleanup item, not a consistency problem.
		m.logger.Warn("profile removal failed",
			zap.String("instance_id", instanceID), zap.Error(err))
	}

	if m.metrics != nil {
		m.metrics.SetInstanceStats(m.Stats())
	}
	m.logger.Info("instance deleted", zap.String("instance_id", instanceID))
	return nil
}

// Export streams the profile directory as tar.gz. Requires the instance
// to be stopped; a live profile would archive mid-write SQLite state.
func (m *Manager) Export(ctx context.Context, instanceID string, w io.Writer) error {
	mu := m.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := m.store.Get(instanceID)
	if err != nil {
		return err
	}
	switch inst.ObservedState {
	case types.StateStopped, types.StateCrashed:
	default:
		return fmt.Errorf("instance %s is %s: %w", instanceID, inst.ObservedState, types.ErrConflict)
	}
	return m.profiles.Archive(inst, w)
}

// AutostartResult reports which instances a boot pass touched.
type AutostartResult struct {
	Started        []string `json:"started"`
	AlreadyRunning []string `json:"already_running"`
	Failed         []string `json:"failed"`
}

// StartAutostart launches every instance flagged auto_start. Failures are
// collected rather than aborting the sweep; one broken profile must not
// keep the rest of the fleet down.
func (m *Manager) StartAutostart(ctx context.Context) AutostartResult {
	var result AutostartResult
	for _, inst := range m.store.List() {
		if !inst.AutoStart {
			continue
		}
		switch inst.ObservedState {
		case types.StateRunning, types.StateStarting:
			result.AlreadyRunning = append(result.AlreadyRunning, inst.ID)
			continue
		}
		if _, err := m.Start(ctx, inst.ID); err != nil {
			m.logger.Error("autostart failed",
				zap.String("instance_id", inst.ID), zap.Error(err))
			result.Failed = append(result.Failed, inst.ID)
			continue
		}
		result.Started = append(result.Started, inst.ID)
	}
	return result
}

// Reconcile aligns observed state with reality at boot: instances whose
// persisted state says running but whose process is gone are reset to
// stopped (unclean host shutdown), live browsers from a previous admin
// run are re-adopted as running, and the auto-start policy is applied.
func (m *Manager) Reconcile(ctx context.Context) {
	for _, inst := range m.store.List() {
		mu := m.lockFor(inst.ID)
		mu.Lock()
		alive := m.sup.IsRunning(ctx, inst.ID, inst.ProfilePath)
		switch {
		case alive && inst.ObservedState != types.StateRunning:
			m.logger.Info("adopted running browser", zap.String("instance_id", inst.ID))
			if _, err := m.setState(inst.ID, types.StateRunning, types.DesiredRunning); err != nil {
				m.logger.Error("reconcile failed", zap.String("instance_id", inst.ID), zap.Error(err))
			}
		case !alive && inst.ObservedState != types.StateStopped:
			m.logger.Info("reset stale state",
				zap.String("instance_id", inst.ID),
				zap.String("was", string(inst.ObservedState)),
			)
			if _, err := m.setState(inst.ID, types.StateStopped, types.DesiredStopped); err != nil {
				m.logger.Error("reconcile failed", zap.String("instance_id", inst.ID), zap.Error(err))
			}
		}
		mu.Unlock()
	}

	m.StartAutostart(ctx)
	if m.metrics != nil {
		m.metrics.SetInstanceStats(m.Stats())
	}
}

// handleUnexpectedExit is the supervisor's crash callback. The instance
// moves to crashed; if auto_start is set and the retry budget is not
// exhausted a restart is scheduled with exponential backoff, otherwise
// the instance lands in stopped.
func (m *Manager) handleUnexpectedExit(instanceID string, exitErr error) {
	mu := m.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := m.store.Get(instanceID)
	if err != nil {
		return // deleted while the exit was in flight
	}
	if inst.ObservedState != types.StateRunning && inst.ObservedState != types.StateStarting {
		return // an operator stop already won this race
	}

	if _, err := m.setState(instanceID, types.StateCrashed, inst.DesiredState); err != nil {
		m.logger.Error("crash transition failed", zap.String("instance_id", instanceID), zap.Error(err))
		return
	}
	if m.metrics != nil {
		m.metrics.RecordCrash()
		m.metrics.SetInstanceStats(m.Stats())
	}
	m.logger.Warn("instance crashed",
		zap.String("instance_id", instanceID),
		zap.Error(exitErr),
	)

	if !inst.AutoStart {
		return
	}

	attempt := m.consumeRetry(instanceID)
	if attempt > m.opts.RestartMax {
		m.logger.Warn("restart budget exhausted",
			zap.String("instance_id", instanceID),
			zap.Int("attempts", m.opts.RestartMax),
		)
		if _, err := m.setState(instanceID, types.StateStopped, types.DesiredStopped); err != nil {
			m.logger.Error("final stop transition failed", zap.String("instance_id", instanceID), zap.Error(err))
		}
		m.resetRetries(instanceID)
		return
	}

	delay := m.backoff(attempt)
	m.logger.Info("scheduling crash restart",
		zap.String("instance_id", instanceID),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
	time.AfterFunc(delay, func() { m.crashRestart(instanceID) })
}

// crashRestart runs in its own goroutine after the backoff delay; no
// instance lock is held while sleeping.
func (m *Manager) crashRestart(instanceID string) {
	mu := m.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := m.store.Get(instanceID)
	if err != nil || inst.ObservedState != types.StateCrashed {
		return // deleted, stopped or manually restarted meanwhile
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.StopTimeout)
	defer cancel()

	if _, err := m.startLocked(ctx, instanceID, true); err != nil {
		// startLocked already reverted the record to stopped.
		m.logger.Error("crash restart failed",
			zap.String("instance_id", instanceID), zap.Error(err))
		m.resetRetries(instanceID)
		return
	}

	if m.metrics != nil {
		m.metrics.RecordRestart()
	}

	// A restart that survives the stability window earns a fresh budget.
	window := m.opts.StableWindow
	if window > 0 {
		time.AfterFunc(window, func() {
			if cur, err := m.store.Get(instanceID); err == nil && cur.ObservedState == types.StateRunning {
				m.resetRetries(instanceID)
			}
		})
	}
}

func (m *Manager) consumeRetry(instanceID string) int {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()
	m.retries[instanceID]++
	return m.retries[instanceID]
}

func (m *Manager) resetRetries(instanceID string) {
	m.retryMu.Lock()
	delete(m.retries, instanceID)
	m.retryMu.Unlock()
}

func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.opts.RestartBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.opts.RestartCap {
			return m.opts.RestartCap
		}
	}
	if delay > m.opts.RestartCap {
		return m.opts.RestartCap
	}
	return delay
}

// setState persists an observed/desired state change and notifies
// subscribers. State transitions do not bump the config version.
func (m *Manager) setState(instanceID string, observed types.ObservedState, desired types.DesiredState) (*types.Instance, error) {
	updated, err := m.store.Update(instanceID, func(inst *types.Instance) error {
		inst.ObservedState = observed
		inst.DesiredState = desired
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(types.Event{InstanceID: instanceID, State: observed, At: time.Now().UTC()})
	return updated, nil
}

// Subscribe registers an event channel for state-change notifications.
// The returned function unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan types.Event, func()) {
	ch := make(chan types.Event, 16)

	m.eventMu.Lock()
	m.subs[ch] = struct{}{}
	m.eventMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.eventMu.Lock()
			delete(m.subs, ch)
			m.eventMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish fans an event out without blocking; a slow subscriber drops
// events rather than stalling a state transition.
func (m *Manager) publish(ev types.Event) {
	m.eventMu.RLock()
	defer m.eventMu.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func normalizeProxy(p *types.Proxy) *types.Proxy {
	if p.IsZero() {
		return nil
	}
	out := *p
	out.Host = strings.TrimSpace(out.Host)
	return &out
}

func proxyEqual(a, b *types.Proxy) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	if a.IsZero() != b.IsZero() {
		return false
	}
	return *a == *b
}
