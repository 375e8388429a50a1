package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"lumen/internal/fleet"
	"lumen/internal/logging"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu           sync.Mutex
	connected    bool
	err          error
	messages     []published
	disconnected bool
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, _ := payload.([]byte)
	b.messages = append(b.messages, published{topic: topic, retained: retained, payload: data})
	return fakeToken{err: b.err}
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	b.disconnected = true
	b.mu.Unlock()
}

func (b *fakeBroker) snapshot() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.messages...)
}

func newTestPublisher(b *fakeBroker) *Publisher {
	p := newPublisher(b, "/lumen/monitors/", logging.NewNop())
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}

func TestPublisherMirrorsRegistryEvents(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := newTestPublisher(b)

	p.HandleEvent(fleet.Event{Kind: fleet.EntryAdded, Entry: fleet.View{
		ID: "ddc:DELL U2415:ABC", Description: "Dell", Accessible: true, Controllable: true,
		Brightness: 40, AdjustedBrightness: 40, Contrast: 70, HasContrast: true,
	}})
	p.HandleEvent(fleet.Event{Kind: fleet.ScanningChanged, Index: -1, Scanning: true})
	p.HandleEvent(fleet.Event{Kind: fleet.EntryRemoved, Entry: fleet.View{ID: "ddc:DELL U2415:ABC"}})
	p.Close()

	msgs := b.snapshot()
	if len(msgs) != 3 {
		t.Fatalf("expected state, clear and offline status, got %d messages", len(msgs))
	}
	wantTopic := "lumen/monitors/ddc:dell_u2415:abc/state"
	if msgs[0].topic != wantTopic || !msgs[0].retained {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	var state State
	if err := json.Unmarshal(msgs[0].payload, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Brightness != 40 || state.Contrast == nil || *state.Contrast != 70 || state.UpdatedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected state %+v", state)
	}
	if msgs[1].topic != wantTopic || len(msgs[1].payload) != 0 || !msgs[1].retained {
		t.Fatalf("expected retained clear on removal, got %+v", msgs[1])
	}
	if msgs[2].topic != "lumen/monitors/status" {
		t.Fatalf("expected offline status last, got %q", msgs[2].topic)
	}
	if !b.disconnected {
		t.Fatal("expected disconnect on close")
	}
}

func TestPublisherOmitsAbsentContrast(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := newTestPublisher(b)
	p.HandleEvent(fleet.Event{Kind: fleet.EntryUpdated, Entry: fleet.View{ID: "backlight:panel"}})
	p.Close()

	var raw map[string]any
	if err := json.Unmarshal(b.snapshot()[0].payload, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["contrast"]; ok {
		t.Fatal("expected contrast to be omitted when never reported")
	}
}

func TestPublisherSkipsWhileDisconnected(t *testing.T) {
	b := &fakeBroker{connected: false}
	p := newTestPublisher(b)
	p.HandleEvent(fleet.Event{Kind: fleet.EntryAdded, Entry: fleet.View{ID: "a"}})
	p.Close()

	if got := len(b.snapshot()); got != 0 {
		t.Fatalf("expected nothing published while disconnected, got %d", got)
	}
}

func TestPublisherSurvivesPublishErrors(t *testing.T) {
	b := &fakeBroker{connected: true, err: errors.New("not authorized")}
	p := newTestPublisher(b)
	p.HandleEvent(fleet.Event{Kind: fleet.EntryAdded, Entry: fleet.View{ID: "a"}})
	p.HandleEvent(fleet.Event{Kind: fleet.EntryAdded, Entry: fleet.View{ID: "b"}})
	p.Close()
	p.Close()

	if got := len(b.snapshot()); got != 3 {
		t.Fatalf("expected every update attempted, got %d", got)
	}
}

func TestTopicSegment(t *testing.T) {
	tests := map[string]string{
		"ddc:LG HDR 4K:":   "ddc:lg_hdr_4k:",
		"backlight:intel":  "backlight:intel",
		"weird/+#id":       "weird___id",
		"  Spaced\tName  ": "spaced_name",
	}
	for in, want := range tests {
		if got := topicSegment(in); got != want {
			t.Fatalf("topicSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
