package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestPublishDeliversTopicThenWildcardInOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(WildcardTopic, func(m *Message) error {
		order = append(order, "wildcard")
		return nil
	})
	bus.Subscribe("site.evaluation.completed", func(m *Message) error {
		order = append(order, "topic-1")
		return nil
	})
	bus.Subscribe("site.evaluation.completed", func(m *Message) error {
		order = append(order, "topic-2")
		return nil
	})
	bus.Subscribe("other", func(m *Message) error {
		order = append(order, "other")
		return nil
	})

	if _, err := bus.Publish("site.evaluation.completed", map[string]any{"score": 76.25}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	want := []string{"topic-1", "topic-2", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestPublishWithoutSubscribersIsRecorded(t *testing.T) {
	bus := NewBus()
	msg, err := bus.Publish("nobody.listens", map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	recent := bus.RecentMessages("nobody.listens", 10)
	if len(recent) != 1 || recent[0].ID != msg.ID {
		t.Fatalf("expected the message in history, got %d", len(recent))
	}
	if stats := bus.Stats(); stats.Published != 1 || stats.Processed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPayloadReadsBackByteIdentical(t *testing.T) {
	bus := NewBus()

	raw := json.RawMessage(`{"z":1,  "a":[3,2,1],"nested":{"k":"v"}}`)
	if _, err := bus.Publish("raw", raw); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	got := bus.RecentMessages("raw", 1)[0].Payload
	if !bytes.Equal(got, raw) {
		t.Errorf("payload changed: %s", got)
	}

	value := map[string]any{"site_id": "SITE-001", "overall_score": 76.25}
	encoded, _ := json.Marshal(value)
	if _, err := bus.Publish("value", value); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got := bus.RecentMessages("value", 1)[0].Payload; !bytes.Equal(got, encoded) {
		t.Errorf("expected %s, got %s", encoded, got)
	}

	// 修改调用方缓冲区不能影响历史
	raw[2] = 'y'
	if got := bus.RecentMessages("raw", 1)[0].Payload; got[2] != 'z' {
		t.Error("history shares memory with the publisher")
	}
}

func TestPublishRejectsInvalidInput(t *testing.T) {
	bus := NewBus()
	if _, err := bus.Publish("", nil); !IsBusError(err) {
		t.Errorf("expected bus error for empty topic, got %v", err)
	}
	if _, err := bus.Publish(WildcardTopic, nil); !IsBusError(err) {
		t.Errorf("expected bus error for wildcard publish, got %v", err)
	}
	if _, err := bus.Publish("t", []byte("{not json")); !IsBusError(err) {
		t.Errorf("expected bus error for invalid JSON, got %v", err)
	}
}

func TestSubscriberFailureIsContained(t *testing.T) {
	bus := NewBus()

	delivered := 0
	bus.Subscribe("t", func(m *Message) error { return errors.New("nope") })
	bus.Subscribe("t", func(m *Message) error { panic("bad subscriber") })
	bus.Subscribe("t", func(m *Message) error {
		delivered++
		return nil
	})

	if _, err := bus.Publish("t", 1); err != nil {
		t.Fatalf("publisher must not see subscriber errors: %v", err)
	}
	if delivered != 1 {
		t.Errorf("healthy subscriber should still run")
	}
	if stats := bus.Stats(); stats.Failed != 2 {
		t.Errorf("expected 2 failed deliveries, got %d", stats.Failed)
	}
}

func TestUnsubscribeAndNoReplay(t *testing.T) {
	bus := NewBus()
	bus.Publish("t", "before")

	calls := 0
	id := bus.Subscribe("t", func(m *Message) error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Fatal("subscribe must not replay history")
	}

	bus.Publish("t", "during")
	if !bus.Unsubscribe("t", id) {
		t.Fatal("unsubscribe should find the subscription")
	}
	bus.Publish("t", "after")

	if calls != 1 {
		t.Errorf("expected 1 delivery, got %d", calls)
	}
	if bus.Unsubscribe("t", id) {
		t.Error("second unsubscribe should report false")
	}
	if stats := bus.Stats(); stats.Topics != 0 || stats.Subscribers != 0 {
		t.Errorf("empty topic should be dropped: %+v", stats)
	}
}

func TestOptionsAndCorrelationQuery(t *testing.T) {
	bus := NewBus()
	bus.Publish("t", 1, WithSender("orchestrator"), WithCorrelationID("WF-1"), WithPriority(9))
	bus.Publish("t", 2)

	msgs := bus.ByCorrelation("WF-1")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 correlated message, got %d", len(msgs))
	}
	if msgs[0].Sender != "orchestrator" || msgs[0].Priority != 9 {
		t.Errorf("options not applied: %+v", msgs[0])
	}

	plain := bus.RecentMessages("", 0)[1]
	if plain.Sender != DefaultSender || plain.Priority != DefaultPriority {
		t.Errorf("defaults not applied: %+v", plain)
	}

	var decoded int
	if err := msgs[0].Decode(&decoded); err != nil || decoded != 1 {
		t.Errorf("decode failed: %v %d", err, decoded)
	}

	bus.Clear()
	if len(bus.RecentMessages("", 10)) != 0 {
		t.Error("clear should drop history")
	}
}

func TestBusClockStampsMessages(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	bus := NewBus(WithBusClock(func() time.Time { return fixed }))

	msg, err := bus.Publish("site.evaluation.completed", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if !msg.Timestamp.Equal(fixed) || !bus.Now().Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, msg.Timestamp)
	}

	explicit := fixed.Add(time.Hour)
	msg, err = bus.Publish("site.evaluation.completed", nil, WithTimestamp(explicit))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if !msg.Timestamp.Equal(explicit) {
		t.Errorf("an explicit timestamp should win, got %v", msg.Timestamp)
	}
}
