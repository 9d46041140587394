package fhevm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Status is the state of a Lifecycle
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// LifecycleParams are the inputs a Lifecycle keeps consistent with
type LifecycleParams struct {
	Provider          string
	ChainID           int64
	Enabled           bool
	InitialMockChains map[int64]string
}

// Snapshot is a consistent view of a Lifecycle
type Snapshot struct {
	Instance   Instance
	Status     Status
	Err        error
	Generation uint64
}

// Lifecycle keeps exactly one instance creation attempt consistent with
// the latest (provider, chainID) pair.
//
// Superseded attempts are not stopped; their context is canceled and their
// result is discarded when it arrives. An attempt's result is accepted only
// if its generation and provider are still current and its context was not
// canceled.
type Lifecycle struct {
	factory Factory
	logger  *zap.Logger

	mu         sync.Mutex
	provider   string
	chainID    int64
	enabled    bool
	mockChains map[int64]string

	status     Status
	instance   Instance
	err        error
	generation uint64
	cancel     context.CancelFunc
	changed    chan struct{}

	attempts sync.WaitGroup
}

// NewLifecycle creates a Lifecycle and starts the first attempt if params
// are enabled and name a provider. InitialMockChains is captured once.
func NewLifecycle(factory Factory, params LifecycleParams, logger *zap.Logger) *Lifecycle {
	mockChains := make(map[int64]string, len(params.InitialMockChains))
	for id, url := range params.InitialMockChains {
		mockChains[id] = url
	}

	l := &Lifecycle{
		factory:    factory,
		logger:     logger,
		provider:   params.Provider,
		chainID:    params.ChainID,
		enabled:    params.Enabled,
		mockChains: mockChains,
		status:     StatusIdle,
		changed:    make(chan struct{}),
	}

	l.mu.Lock()
	l.restartLocked()
	l.mu.Unlock()
	return l
}

// Sync applies new params. A provider or chain change restarts creation,
// disabling resets to idle, re-enabling starts a new attempt.
func (l *Lifecycle) Sync(params LifecycleParams) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	connChanged := params.Provider != l.provider || params.ChainID != l.chainID
	enabledChanged := params.Enabled != l.enabled

	l.provider = params.Provider
	l.chainID = params.ChainID
	l.enabled = params.Enabled

	if connChanged || enabledChanged {
		l.restartLocked()
	}
	return l.snapshotLocked()
}

// Refresh cancels any in-flight attempt and starts over from idle
func (l *Lifecycle) Refresh() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("refreshing fhevm instance", zap.String("provider", l.provider))
	l.restartLocked()
}

// Snapshot returns the current state
func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Instance returns the ready instance or ErrInstanceNotReady
func (l *Lifecycle) Instance() (Instance, error) {
	snap := l.Snapshot()
	if snap.Status != StatusReady {
		return nil, ErrInstanceNotReady
	}
	return snap.Instance, nil
}

// Wait blocks until the current attempt settles. It returns the instance
// when ready, the creation error on failure, and ErrInstanceNotReady when
// the lifecycle is idle.
func (l *Lifecycle) Wait(ctx context.Context) (Instance, error) {
	for {
		l.mu.Lock()
		snap := l.snapshotLocked()
		changed := l.changed
		l.mu.Unlock()

		switch snap.Status {
		case StatusReady:
			return snap.Instance, nil
		case StatusError:
			return nil, snap.Err
		case StatusIdle:
			return nil, ErrInstanceNotReady
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Close cancels any in-flight attempt and resets to idle
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.enabled = false
	l.restartLocked()
}

func (l *Lifecycle) snapshotLocked() Snapshot {
	return Snapshot{
		Instance:   l.instance,
		Status:     l.status,
		Err:        l.err,
		Generation: l.generation,
	}
}

func (l *Lifecycle) setLocked(status Status, instance Instance, err error) {
	l.status = status
	l.instance = instance
	l.err = err
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Lifecycle) restartLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.generation++
	l.setLocked(StatusIdle, nil, nil)

	if !l.enabled || l.provider == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	generation := l.generation
	provider := l.provider
	params := CreateParams{
		Provider:   provider,
		ChainID:    l.chainID,
		MockChains: l.mockChains,
		OnStatusChange: func(step string) {
			l.logger.Debug("fhevm instance creation step",
				zap.String("step", step),
				zap.Uint64("generation", generation),
			)
		},
	}

	l.setLocked(StatusLoading, nil, nil)
	l.attempts.Add(1)
	go l.run(ctx, generation, provider, params)
}

func (l *Lifecycle) run(ctx context.Context, generation uint64, provider string, params CreateParams) {
	defer l.attempts.Done()

	instance, err := l.factory.CreateInstance(ctx, params)

	l.mu.Lock()
	defer l.mu.Unlock()

	if ctx.Err() != nil || generation != l.generation || provider != l.provider {
		l.logger.Debug("discarding stale fhevm instance result",
			zap.Uint64("generation", generation),
			zap.Uint64("current_generation", l.generation),
			zap.Error(err),
		)
		return
	}

	l.cancel()
	l.cancel = nil

	if err != nil {
		l.logger.Error("fhevm instance creation failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
		l.setLocked(StatusError, nil, err)
		return
	}

	l.logger.Info("fhevm instance ready",
		zap.String("provider", provider),
		zap.Uint64("generation", generation),
	)
	l.setLocked(StatusReady, instance, nil)
}
