package devserver

import (
	"os"
	"os/signal"
	"sync"
)

// ShutdownReason says why a session ended.
type ShutdownReason int

const (
	ReasonSignal ShutdownReason = iota
	ReasonExit
)

// String returns the string representation of the ShutdownReason
func (r ShutdownReason) String() string {
	switch r {
	case ReasonSignal:
		return "signal"
	case ReasonExit:
		return "exit"
	default:
		return "unknown"
	}
}

// ShutdownSource lets components register cleanup for the end of a session.
type ShutdownSource interface {
	OnShutdown(handler func(ShutdownReason))
}

// SignalHooks is the process-level ShutdownSource. Handlers run once, on the
// first of: one of the watched signals arriving, or Exit being called on the
// normal exit path.
type SignalHooks struct {
	mu       sync.Mutex
	handlers []func(ShutdownReason)
	fired    bool
	reason   ShutdownReason

	sigCh chan os.Signal
	done  chan struct{}
	stop  chan struct{}
	once  sync.Once
}

// NewSignalHooks starts listening for sigs.
func NewSignalHooks(sigs ...os.Signal) *SignalHooks {
	h := &SignalHooks{
		sigCh: make(chan os.Signal, 1),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	if len(sigs) > 0 {
		signal.Notify(h.sigCh, sigs...)
		go h.listen()
	}
	return h
}

func (h *SignalHooks) listen() {
	select {
	case <-h.sigCh:
		signal.Stop(h.sigCh)
		h.fire(ReasonSignal)
	case <-h.stop:
	}
}

// OnShutdown registers handler. If the session already ended, handler runs
// immediately on the caller's goroutine.
func (h *SignalHooks) OnShutdown(handler func(ShutdownReason)) {
	h.mu.Lock()
	if h.fired {
		reason := h.reason
		h.mu.Unlock()
		handler(reason)
		return
	}
	h.handlers = append(h.handlers, handler)
	h.mu.Unlock()
}

// Exit runs the handlers for a normal exit. Call it with defer from main.
func (h *SignalHooks) Exit() {
	h.fire(ReasonExit)
}

// Done is closed once the handlers have run.
func (h *SignalHooks) Done() <-chan struct{} {
	return h.done
}

// Close stops listening for signals without running any handler.
func (h *SignalHooks) Close() {
	h.once.Do(func() {
		signal.Stop(h.sigCh)
		close(h.stop)
	})
}

func (h *SignalHooks) fire(reason ShutdownReason) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	h.reason = reason
	handlers := h.handlers
	h.handlers = nil
	h.mu.Unlock()

	for _, handler := range handlers {
		handler(reason)
	}
	close(h.done)
	h.Close()
}
