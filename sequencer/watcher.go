package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vocdoni/mpn-executor/log"
)

// heightWatcher polls the node height while a round is in flight and
// cancels the round once the height moves away from the one it started at.
type heightWatcher struct {
	node     Node
	clock    clockwork.Clock
	interval time.Duration
	height   uint64
	cancel   context.CancelFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// watchHeight starts a watcher for a round started at height. cancel is
// called when the height moves. The returned function stops the watcher and
// waits for it to exit.
func watchHeight(ctx context.Context, node Node, clock clockwork.Clock, interval time.Duration,
	height uint64, cancel context.CancelFunc,
) func() {
	w := &heightWatcher{
		node:     node,
		clock:    clock,
		interval: interval,
		height:   height,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w.stop
}

func (w *heightWatcher) run(ctx context.Context) {
	defer close(w.done)
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.Chan():
			h, err := w.node.Height(ctx)
			if err != nil {
				log.Debugw("height watcher poll failed", "error", err.Error())
				continue
			}
			if h != w.height {
				log.Infow("height moved, cancelling round", "started", w.height, "current", h)
				w.cancel()
				return
			}
		}
	}
}

func (w *heightWatcher) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}
