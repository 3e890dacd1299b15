package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/waveform"
)

// Options configures the MQTT pick feed.
type Options struct {
	Broker         string
	Topic          string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	QueueSize      int
}

// MQTTFeed subscribes to pick notifications over MQTT. Reconnects are
// handled by the client; the subscription is re-established from the
// OnConnect hook so a broker restart does not silence the feed.
type MQTTFeed struct {
	opts   Options
	client mqtt.Client
	picks  chan waveform.Pick
	log    *slog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool

	// Dropped counts picks discarded because the delivery channel was
	// full. A non-zero value means the coordinator is not keeping up.
	dropped int64
	// Malformed counts messages that failed to parse.
	malformed int64
}

// NewMQTTFeed creates a feed for the given broker and topic.
func NewMQTTFeed(opts Options) *MQTTFeed {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &MQTTFeed{
		opts:  opts,
		picks: make(chan waveform.Pick, opts.QueueSize),
		log:   logging.Component("listener"),
	}
}

// Connect establishes the broker connection and subscription. The client
// keeps reconnecting on its own afterwards.
func (f *MQTTFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.ErrFeedClosed
	}
	f.mu.Unlock()

	co := mqtt.NewClientOptions().
		AddBroker(f.opts.Broker).
		SetClientID(f.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetCleanSession(false).
		SetOnConnectHandler(f.onConnect).
		SetConnectionLostHandler(f.onConnectionLost)
	if f.opts.Username != "" {
		co.SetUsername(f.opts.Username)
		co.SetPassword(f.opts.Password)
	}

	f.client = mqtt.NewClient(co)

	token := f.client.Connect()
	if !waitToken(ctx, token, f.opts.ConnectTimeout) {
		f.client.Disconnect(0)
		return errors.Wrapf(errors.ErrConnectionFailed, "broker %s: connect timeout", f.opts.Broker)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(errors.ErrConnectionFailed, "broker %s: %v", f.opts.Broker, err)
	}
	return nil
}

// onConnect runs on every (re)connection and re-establishes the
// subscription.
func (f *MQTTFeed) onConnect(client mqtt.Client) {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	f.log.Info("connected to pick feed", "broker", f.opts.Broker, "topic", f.opts.Topic)

	token := client.Subscribe(f.opts.Topic, 1, f.onMessage)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			f.log.Error("subscribe failed", "topic", f.opts.Topic, "error", err)
		}
	}()
}

func (f *MQTTFeed) onConnectionLost(_ mqtt.Client, err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.log.Warn("pick feed connection lost, reconnecting", "error", err)
}

// onMessage parses one pick notification and queues it. The handler never
// blocks the MQTT client: a full queue drops the pick and counts it.
func (f *MQTTFeed) onMessage(_ mqtt.Client, msg mqtt.Message) {
	pick, err := ParsePick(msg.Payload())
	if err != nil {
		f.mu.Lock()
		f.malformed++
		f.mu.Unlock()
		f.log.Warn("dropping malformed pick message", "topic", msg.Topic(), "error", err)
		return
	}
	f.deliver(pick)
}

// deliver queues one pick. The send happens under the lock that guards
// closed, so a handler still in flight when Close runs discards its pick
// instead of hitting the closed channel. Disconnect quiesces handlers
// best-effort only.
func (f *MQTTFeed) deliver(pick waveform.Pick) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	select {
	case f.picks <- pick:
	default:
		f.dropped++
		f.log.Error("pick queue full, dropping pick", "pick_id", pick.ID, "stream", pick.Stream.String())
	}
}

// Picks returns the delivery channel.
func (f *MQTTFeed) Picks() <-chan waveform.Pick {
	return f.picks
}

// Connected reports whether the broker connection is up.
func (f *MQTTFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Counters returns the dropped and malformed message counts.
func (f *MQTTFeed) Counters() (dropped, malformed int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped, f.malformed
}

// Close disconnects from the broker and closes the delivery channel.
// The channel is closed under the same lock deliver sends under, so no
// handler can send after the close.
func (f *MQTTFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.connected = false
	close(f.picks)
	f.mu.Unlock()

	if f.client != nil {
		f.client.Disconnect(250)
	}
	return nil
}

// waitToken waits for an MQTT token respecting both the context and the
// timeout.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}
