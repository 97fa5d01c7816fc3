package scripthost

import (
	"testing"
	"time"

	"github.com/fruitsalade/studiokit/pkg/protocol"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}
	if _, ok := <-ch1; ok {
		t.Fatal("expected unsubscribed channel to be closed")
	}

	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Publish(protocol.Event{Type: protocol.EventLibraryChanged, Path: "/lib/Tools"})

	for i, ch := range []chan protocol.Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Path != "/lib/Tools" {
				t.Errorf("subscriber %d: expected /lib/Tools, got %s", i, got.Path)
			}
			if got.Timestamp == 0 {
				t.Errorf("subscriber %d: expected non-zero timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 20; i++ {
		b.Publish(protocol.Event{Type: protocol.EventLibraryChanged})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected a full buffer of %d, got %d", cap(ch), len(ch))
	}
}
