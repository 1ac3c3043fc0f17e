package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/awestray/backlay/internal/domain"
)

type fakeSender struct {
	name    string
	sent    []string
	actions []string
	sendErr error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.sent = append(f.sent, title)
	return f.sendErr
}

func (f *fakeSender) Name() string { return f.name }

type fakeActionSender struct {
	fakeSender
}

func (f *fakeActionSender) SendAction(_ context.Context, title, _, label, data string) error {
	f.actions = append(f.actions, title+"|"+label+"|"+data)
	return f.sendErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventExecution, EventReport}, testLogger())

	if err := n.Notify(context.Background(), EventOpportunity, "skipped", "x"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if err := n.Notify(context.Background(), EventExecution, "delivered", "x"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0] != "delivered" {
		t.Errorf("sent = %v, want [delivered]", sender.sent)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	for _, event := range []string{EventOpportunity, EventSteam, EventError} {
		if err := n.Notify(context.Background(), event, event, "x"); err != nil {
			t.Fatalf("Notify(%s) error = %v", event, err)
		}
	}
	if len(sender.sent) != 3 {
		t.Errorf("sent %d notifications, want 3", len(sender.sent))
	}
}

func TestNotifyActionUsesButtonWhenSupported(t *testing.T) {
	plain := &fakeSender{name: "plain"}
	button := &fakeActionSender{fakeSender: fakeSender{name: "button"}}
	n := NewNotifier([]Sender{plain, button}, nil, testLogger())

	err := n.NotifyAction(context.Background(), EventOpportunity, "arb", "body", "EXECUTE", "exec_arb:abc")
	if err != nil {
		t.Fatalf("NotifyAction() error = %v", err)
	}

	if len(plain.sent) != 1 {
		t.Errorf("plain sender sent = %v, want one plain message", plain.sent)
	}
	if len(button.actions) != 1 || button.actions[0] != "arb|EXECUTE|exec_arb:abc" {
		t.Errorf("button sender actions = %v", button.actions)
	}
	if len(button.sent) != 0 {
		t.Errorf("button sender also got plain send: %v", button.sent)
	}
}

func TestDispatchCollectsSenderErrors(t *testing.T) {
	bad := &fakeSender{name: "bad", sendErr: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("NotifyAll() error = nil, want combined failure")
	}
	if !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("error = %v, want to mention failing sender", err)
	}
	if len(good.sent) != 1 {
		t.Errorf("good sender sent = %v, want delivery despite sibling failure", good.sent)
	}
}

type fakeBus struct {
	published map[string][][]byte
	appended  map[string][][]byte
	pubErr    error
	appendErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: map[string][][]byte{},
		appended:  map[string][][]byte{},
	}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended[stream] = append(f.appended[stream], payload)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestNotifyMirrorsToBus(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	bus := newFakeBus()
	n := NewNotifier([]Sender{sender}, nil, testLogger()).WithBus(bus)

	if err := n.Notify(context.Background(), EventOpportunity, "arb found", "details"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	channel := AlertChannel(EventOpportunity)
	if len(bus.published[channel]) != 1 {
		t.Fatalf("published on %s = %d payloads, want 1", channel, len(bus.published[channel]))
	}
	var alert struct {
		Event   string `json:"event"`
		Title   string `json:"title"`
		Message string `json:"message"`
		At      string `json:"at"`
	}
	if err := json.Unmarshal(bus.published[channel][0], &alert); err != nil {
		t.Fatalf("published payload is not JSON: %v", err)
	}
	if alert.Event != EventOpportunity || alert.Title != "arb found" || alert.Message != "details" {
		t.Errorf("alert = %+v", alert)
	}
	if alert.At == "" {
		t.Error("alert.At is empty")
	}
	if len(bus.appended[AlertStream]) != 1 {
		t.Errorf("appended to %s = %d payloads, want 1", AlertStream, len(bus.appended[AlertStream]))
	}
}

func TestNotifyFilteredEventNotMirrored(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	bus := newFakeBus()
	n := NewNotifier([]Sender{sender}, []string{EventReport}, testLogger()).WithBus(bus)

	if err := n.Notify(context.Background(), EventOpportunity, "skipped", "x"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(bus.published) != 0 || len(bus.appended) != 0 {
		t.Errorf("filtered event reached the bus: published=%v appended=%v", bus.published, bus.appended)
	}
	if len(sender.sent) != 0 {
		t.Errorf("filtered event was delivered: %v", sender.sent)
	}
}

func TestMirrorFailureDoesNotBlockDelivery(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	bus := newFakeBus()
	bus.pubErr = errors.New("redis down")
	bus.appendErr = errors.New("redis down")
	n := NewNotifier([]Sender{sender}, nil, testLogger()).WithBus(bus)

	if err := n.Notify(context.Background(), EventSteam, "steam", "x"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent = %v, want delivery despite mirror failure", sender.sent)
	}
}

func TestNotifyAllMirrorsAsSystem(t *testing.T) {
	bus := newFakeBus()
	n := NewNotifier(nil, nil, testLogger()).WithBus(bus)

	if err := n.NotifyAll(context.Background(), "starting", "x"); err != nil {
		t.Fatalf("NotifyAll() error = %v", err)
	}
	if len(bus.published[AlertChannel("system")]) != 1 {
		t.Errorf("published = %v, want one alerts:system payload", bus.published)
	}
}
