package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"lumen/internal/config"
	"lumen/internal/deviceid"
	"lumen/internal/fleet"
	"lumen/internal/logging"
)

const queueSize = 64

// broker is the subset of the paho client the publisher drives.
type broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// State is the retained document published for one monitor.
type State struct {
	ID                 string `json:"id"`
	Name               string `json:"name,omitempty"`
	Description        string `json:"description"`
	Accessible         bool   `json:"accessible"`
	Controllable       bool   `json:"controllable"`
	Target             bool   `json:"target"`
	Unison             bool   `json:"unison"`
	Brightness         int    `json:"brightness"`
	AdjustedBrightness int    `json:"adjusted_brightness"`
	Contrast           *int   `json:"contrast,omitempty"`
	Failures           uint   `json:"failures"`
	UpdatedAt          string `json:"updated_at"`
}

type message struct {
	topic   string
	payload []byte
}

// Publisher mirrors registry events onto retained MQTT topics. Events are
// queued and published from a single goroutine so a slow broker never stalls
// a scan; when the queue is full the event is dropped and logged.
type Publisher struct {
	client broker
	prefix string
	logger *slog.Logger
	now    func() time.Time

	queue chan message
	done  chan struct{}

	mu          sync.Mutex
	closed      bool
	unsubscribe func()
}

// Connect dials the configured broker and announces the daemon as online.
func Connect(cfg config.MQTT, logger *slog.Logger) (*Publisher, error) {
	client := pahomqtt.NewClient(buildClientOptions(cfg))
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	p := newPublisher(client, cfg.TopicPrefix, logger)
	p.enqueue(statusTopic(p.prefix), []byte(statusPayload("online", "")))
	return p, nil
}

func newPublisher(client broker, prefix string, logger *slog.Logger) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "lumen/monitors"
	}
	p := &Publisher{
		client: client,
		prefix: prefix,
		logger: logging.NewComponentLogger(logger, "mqtt"),
		now:    time.Now,
		queue:  make(chan message, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Attach publishes the current fleet and follows subsequent registry events.
func (p *Publisher) Attach(registry *fleet.Registry) {
	for _, view := range registry.Views() {
		p.publishView(view)
	}
	unsubscribe := registry.Subscribe(p.HandleEvent)
	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
}

// HandleEvent translates one registry event into a topic update.
func (p *Publisher) HandleEvent(evt fleet.Event) {
	switch evt.Kind {
	case fleet.EntryAdded, fleet.EntryUpdated:
		p.publishView(evt.Entry)
	case fleet.EntryRemoved:
		p.enqueue(p.StateTopic(evt.Entry.ID), nil)
	}
}

// StateTopic returns the retained state topic for a monitor id.
func (p *Publisher) StateTopic(id string) string {
	return p.prefix + "/" + topicSegment(id) + "/state"
}

func (p *Publisher) publishView(view fleet.View) {
	state := State{
		ID:                 view.ID,
		Name:               view.Name,
		Description:        view.Description,
		Accessible:         view.Accessible,
		Controllable:       view.Controllable,
		Target:             view.Target,
		Unison:             view.Unison,
		Brightness:         view.Brightness,
		AdjustedBrightness: view.AdjustedBrightness,
		Failures:           view.Failures,
		UpdatedAt:          p.now().UTC().Format(time.RFC3339),
	}
	if view.HasContrast {
		contrast := view.Contrast
		state.Contrast = &contrast
	}
	payload, err := json.Marshal(state)
	if err != nil {
		p.logger.Error("encode state failed", logging.Device(view.ID), logging.Error(err))
		return
	}
	p.enqueue(p.StateTopic(view.ID), payload)
}

func (p *Publisher) enqueue(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- message{topic: topic, payload: payload}:
	default:
		logging.WarnWithContext(p.logger, "mqtt queue full; dropping state update", "mqtt_queue_full",
			logging.String("topic", topic),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
			logging.String(logging.FieldImpact, "subscribers may see stale monitor state until the next change"),
		)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.publish(msg.topic, msg.payload); err != nil {
			logging.WarnWithContext(p.logger, "mqtt publish failed", "mqtt_publish_failed",
				logging.String("topic", msg.topic),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check mqtt.broker and credentials"),
				logging.String(logging.FieldImpact, "subscribers may see stale monitor state"),
			)
		}
	}
}

func (p *Publisher) publish(topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, defaultQoS, true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close detaches from the registry, flushes queued updates, announces the
// daemon as offline, and disconnects.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	p.enqueue(statusTopic(p.prefix), []byte(statusPayload("offline", "graceful_shutdown")))

	p.mu.Lock()
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
	p.client.Disconnect(defaultDisconnectQuiesce)
}

// topicSegment turns a monitor id into a single topic level. Wildcards,
// separators and whitespace become underscores.
func topicSegment(id string) string {
	folded := deviceid.Fold(id)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '+' || r == '#':
			return '_'
		case unicode.IsSpace(r):
			return '_'
		}
		return r
	}, folded)
}
