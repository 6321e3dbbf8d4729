package session

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"moocore/types"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNotifyBuffersAndLogs(t *testing.T) {
	log, err := NewEventLog(testKey(), nil)
	if err != nil {
		t.Fatalf("NewEventLog failed: %v", err)
	}
	s := New(types.ObjID(5), log, nil)

	s.Notify(types.ObjID(5), "hello")
	s.Notify(types.ObjID(5), "world")

	drained := s.Drain()
	if len(drained) != 2 || drained[0] != "hello" || drained[1] != "world" {
		t.Errorf("unexpected drained output: %v", drained)
	}
	if len(s.Drain()) != 0 {
		t.Error("expected buffer to be empty after drain")
	}
}

func TestNotifyIgnoresOtherPlayers(t *testing.T) {
	s := New(types.ObjID(5), nil, nil)
	s.Notify(types.ObjID(6), "not for you")
	if len(s.Drain()) != 0 {
		t.Error("expected Notify for a different player to be ignored")
	}
}

func TestPresentUnpresentLifecycle(t *testing.T) {
	s := New(types.ObjID(1), nil, nil)
	s.Present(types.ObjID(1), "map-1", map[string]string{"kind": "map"}, "<svg/>")

	ps := s.Presentations()
	if len(ps) != 1 || ps[0].ID != "map-1" {
		t.Fatalf("expected one presentation, got %v", ps)
	}

	s.Unpresent(types.ObjID(1), "map-1")
	if len(s.Presentations()) != 0 {
		t.Error("expected presentation to be removed")
	}
}

func TestDiscardBufferDropsOutput(t *testing.T) {
	s := New(types.ObjID(1), nil, nil)
	s.Notify(types.ObjID(1), "should not survive rollback")
	s.DiscardBuffer()
	if len(s.Drain()) != 0 {
		t.Error("expected discarded buffer to be empty")
	}
}

func TestEventLogEncryptsAtRest(t *testing.T) {
	log, err := NewEventLog(testKey(), nil)
	if err != nil {
		t.Fatalf("NewEventLog failed: %v", err)
	}

	if err := log.Append(types.ObjID(1), NarrativeEvent{Kind: EventNotify, Text: "secret message", At: time.Now()}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	events := log.SinceEventID(uuid.Nil)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	for _, b := range events[0].Sealed {
		_ = b
	}
	if containsPlaintext(events[0].Sealed, "secret message") {
		t.Error("expected sealed bytes to not contain the plaintext message")
	}

	decoded, err := log.Decrypt(events[0])
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if decoded.Text != "secret message" {
		t.Errorf("unexpected decrypted text: %q", decoded.Text)
	}
}

func TestEventLogRejectsWrongPlayerAAD(t *testing.T) {
	log, _ := NewEventLog(testKey(), nil)
	_ = log.Append(types.ObjID(1), NarrativeEvent{Kind: EventNotify, Text: "hi", At: time.Now()})

	events := log.SinceEventID(uuid.Nil)
	tampered := events[0]
	tampered.Player = types.ObjID(2)
	if _, err := log.Decrypt(tampered); err == nil {
		t.Error("expected decrypting under the wrong player AAD to fail")
	}
}

func TestSinceAndUntilEventIDPartitionChronologically(t *testing.T) {
	log, _ := NewEventLog(testKey(), nil)
	_ = log.Append(types.ObjID(1), NarrativeEvent{Kind: EventNotify, Text: "a", At: time.Now()})
	first := log.SinceEventID(uuid.Nil)[0]
	_ = log.Append(types.ObjID(1), NarrativeEvent{Kind: EventNotify, Text: "b", At: time.Now()})

	before := log.UntilEventID(first.EventID)
	if len(before) != 1 || before[0].EventID != first.EventID {
		t.Errorf("expected exactly the first event in UntilEventID, got %d entries", len(before))
	}

	after := log.SinceEventID(first.EventID)
	if len(after) != 1 {
		t.Errorf("expected exactly one event after the first, got %d", len(after))
	}
}

func TestLastNSecondsFiltersByTime(t *testing.T) {
	log, _ := NewEventLog(testKey(), nil)
	now := time.Now()
	_ = log.Append(types.ObjID(1), NarrativeEvent{Kind: EventNotify, Text: "old", At: now.Add(-time.Hour)})
	_ = log.Append(types.ObjID(1), NarrativeEvent{Kind: EventNotify, Text: "recent", At: now})

	recent := log.LastNSeconds(now, time.Minute)
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent event, got %d", len(recent))
	}
	decoded, _ := log.Decrypt(recent[0])
	if decoded.Text != "recent" {
		t.Errorf("expected the recent event, got %q", decoded.Text)
	}
}

func containsPlaintext(haystack []byte, needle string) bool {
	n := []byte(needle)
	for i := 0; i+len(n) <= len(haystack); i++ {
		match := true
		for j := range n {
			if haystack[i+j] != n[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
