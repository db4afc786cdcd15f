package syncengine

import (
	"context"
	"sync"
	"time"

	"distrihub-sync-api/internal/remote"

	"github.com/sirupsen/logrus"
)

// Signals delivers connectivity and app-visibility transitions as an
// explicit subscription interface, so the observer can be tested by
// injecting synthetic transitions instead of listening to ambient
// events.
type Signals interface {
	OnConnectivityChange(handler func(online bool)) (unsubscribe func())
	OnVisibilityChange(handler func(visible bool)) (unsubscribe func())
}

// SignalBus is the concrete signal source. Producers push transitions
// with SetOnline/SetVisible; repeated same-state pushes are dropped so
// subscribers only see changes.
type SignalBus struct {
	mu          sync.Mutex
	online      bool
	visible     bool
	connSubs    map[int]func(bool)
	visSubs     map[int]func(bool)
	nextID      int
	initialized bool
}

// NewSignalBus creates a bus that starts offline and visible.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		visible:  true,
		connSubs: make(map[int]func(bool)),
		visSubs:  make(map[int]func(bool)),
	}
}

// OnConnectivityChange registers a connectivity handler.
func (b *SignalBus) OnConnectivityChange(handler func(online bool)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.connSubs[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.connSubs, id)
		b.mu.Unlock()
	}
}

// OnVisibilityChange registers a visibility handler.
func (b *SignalBus) OnVisibilityChange(handler func(visible bool)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.visSubs[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.visSubs, id)
		b.mu.Unlock()
	}
}

// Online reports the current connectivity state.
func (b *SignalBus) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

// SetOnline pushes a connectivity transition. No-op if unchanged,
// except for the very first push which always notifies.
func (b *SignalBus) SetOnline(online bool) {
	b.mu.Lock()
	if b.initialized && b.online == online {
		b.mu.Unlock()
		return
	}
	b.initialized = true
	b.online = online
	handlers := make([]func(bool), 0, len(b.connSubs))
	for _, h := range b.connSubs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(online)
	}
}

// SetVisible pushes a visibility transition. No-op if unchanged.
func (b *SignalBus) SetVisible(visible bool) {
	b.mu.Lock()
	if b.visible == visible {
		b.mu.Unlock()
		return
	}
	b.visible = visible
	handlers := make([]func(bool), 0, len(b.visSubs))
	for _, h := range b.visSubs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(visible)
	}
}

var _ Signals = (*SignalBus)(nil)

// Prober derives connectivity transitions by polling the backend health
// endpoint and feeding the result into a SignalBus.
type Prober struct {
	api      remote.API
	bus      *SignalBus
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	log      *logrus.Entry
}

// NewProber creates a connectivity prober.
func NewProber(api remote.API, bus *SignalBus, interval time.Duration) *Prober {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Prober{
		api:      api,
		bus:      bus,
		interval: interval,
		timeout:  5 * time.Second,
		stopCh:   make(chan struct{}),
		log:      logrus.WithField("component", "connectivity-prober"),
	}
}

// Start begins probing. The first probe runs immediately.
func (p *Prober) Start() {
	go func() {
		p.probe()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.probe()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func (p *Prober) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.api.Ping(ctx)
	online := err == nil
	if !online {
		p.log.WithError(err).Debug("backend unreachable")
	}
	p.bus.SetOnline(online)
}

// Stop halts probing.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}
