package instance

import (
	"context"
	"math/big"
	"time"

	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"go.uber.org/zap"
)

// ChainReader reports the chain id the provider currently serves
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Syncer accepts new lifecycle inputs
type Syncer interface {
	Sync(params fhevm.LifecycleParams) fhevm.Snapshot
}

// Watcher polls the provider's chain id and restarts the lifecycle when
// the node switches networks.
type Watcher struct {
	reader    ChainReader
	lifecycle Syncer
	params    fhevm.LifecycleParams
	interval  time.Duration
	logger    *zap.Logger
}

// NewWatcher creates a Watcher starting from params
func NewWatcher(reader ChainReader, lifecycle Syncer, params fhevm.LifecycleParams, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{
		reader:    reader,
		lifecycle: lifecycle,
		params:    params,
		interval:  interval,
		logger:    logger,
	}
}

// Run polls until ctx is done
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll checks the chain id once and reports whether the lifecycle was restarted
func (w *Watcher) Poll(ctx context.Context) bool {
	pollCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	id, err := w.reader.ChainID(pollCtx)
	if err != nil {
		w.logger.Debug("failed to poll chain id", zap.Error(err))
		return false
	}
	if id.Int64() == w.params.ChainID {
		return false
	}

	w.logger.Info("provider switched chains",
		zap.Int64("from", w.params.ChainID),
		zap.Int64("to", id.Int64()),
	)
	w.params.ChainID = id.Int64()
	w.lifecycle.Sync(w.params)
	return true
}
