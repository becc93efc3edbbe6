// Package notify subscribes to server-pushed change events for the
// routines collection over a WebSocket channel.
//
// Only the occurrence of an event matters: the payload is decoded for
// logging but the notifier's single job is to trigger a forced reload in
// the sync engine. The subscription runs only while online and is torn
// down on teardown or when connectivity is lost.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Event is the decoded shape of a change notification. Payload content is
// not relied upon beyond logging.
type Event struct {
	Type       string    `json:"type"`
	Collection string    `json:"collection,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Config holds notifier configuration.
type Config struct {
	// URL is the WebSocket endpoint publishing change events.
	URL string

	// OnChange is invoked for every received event.
	OnChange func()

	// ReconnectBase is the initial reconnect delay; it doubles per
	// attempt up to ReconnectMax.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration

	// Logger for connection lifecycle and events.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults. URL and OnChange must still be
// set by the caller.
func DefaultConfig() *Config {
	return &Config{
		ReconnectBase: time.Second,
		ReconnectMax:  30 * time.Second,
		Logger:        log.New(os.Stderr, "[notify] ", log.LstdFlags),
	}
}

// Notifier maintains the subscription and pumps events to OnChange.
type Notifier struct {
	config *Config

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a notifier.
func New(config *Config) *Notifier {
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	if config.ReconnectBase <= 0 {
		config.ReconnectBase = time.Second
	}
	if config.ReconnectMax <= 0 {
		config.ReconnectMax = 30 * time.Second
	}
	return &Notifier{config: config}
}

// Start establishes the subscription in the background. Calling Start on
// a running notifier is a no-op.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ctx != nil {
		return
	}

	n.ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go n.run()
}

// Stop tears the subscription down and waits for the pump to exit.
// Calling Stop on a stopped notifier is a no-op.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel := n.cancel
	n.ctx, n.cancel = nil, nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.wg.Wait()
}

// Running reports whether the subscription is currently established or
// being re-established.
func (n *Notifier) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ctx != nil
}

func (n *Notifier) run() {
	defer n.wg.Done()

	n.mu.Lock()
	ctx := n.ctx
	n.mu.Unlock()
	if ctx == nil {
		return
	}

	delay := n.config.ReconnectBase
	for {
		if err := n.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			n.config.Logger.Printf("Subscription dropped: %v (reconnecting in %v)", err, delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > n.config.ReconnectMax {
			delay = n.config.ReconnectMax
		}
	}
}

// listen connects and pumps events until the connection drops or ctx is
// cancelled.
func (n *Notifier) listen(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, n.config.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "teardown")

	n.config.Logger.Printf("Subscribed to %s", n.config.URL)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			n.config.Logger.Printf("Ignoring malformed event: %v", err)
			continue
		}

		n.config.Logger.Printf("Change event: type=%s collection=%s", ev.Type, ev.Collection)
		if n.config.OnChange != nil {
			n.config.OnChange()
		}
	}
}
