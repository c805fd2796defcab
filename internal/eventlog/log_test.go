package eventlog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendStampsMonotonicTimestamps(t *testing.T) {
	log := NewLog()
	for i := 0; i < 100; i++ {
		log.Append(Event{Kind: KindDataReceived, Data: []byte{byte(i)}})
	}

	events := log.Snapshot()
	require.Len(t, events, 100)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i].Timestamp.After(events[i-1].Timestamp),
			"event %d is not strictly after its predecessor", i)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	log := NewLog()
	log.Append(Event{Kind: KindDataSent, Data: []byte("one")})

	snap := log.Snapshot()
	snap[0].Data = []byte("mutated")

	assert.Equal(t, "one", string(log.Snapshot()[0].Data))
}

func TestOrderSurvivesPauseResumeMarkers(t *testing.T) {
	log := NewLog()
	log.Append(Event{Kind: KindSystemOpen})
	for i := 0; i < 3; i++ {
		log.Append(Event{Kind: KindDataReceived, Data: []byte(fmt.Sprintf("pre-%d", i))})
	}
	log.Append(Event{Kind: KindSystemPause, Reason: "user"})
	log.Append(Event{Kind: KindSystemOpen})
	for i := 0; i < 2; i++ {
		log.Append(Event{Kind: KindDataReceived, Data: []byte(fmt.Sprintf("post-%d", i))})
	}

	events := log.Snapshot()
	require.Len(t, events, 8)

	var kinds []Kind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []Kind{
		KindSystemOpen,
		KindDataReceived, KindDataReceived, KindDataReceived,
		KindSystemPause,
		KindSystemOpen,
		KindDataReceived, KindDataReceived,
	}, kinds)

	// All pre-pause events order strictly before all post-resume events.
	assert.True(t, events[3].Timestamp.Before(events[6].Timestamp))
}

func TestSubscribeReplaysHistoryThenLive(t *testing.T) {
	log := NewLog()
	log.Append(Event{Kind: KindSystemOpen})
	log.Append(Event{Kind: KindDataReceived, Data: []byte("historic")})

	sub := log.Subscribe()
	defer sub.Cancel()

	log.Append(Event{Kind: KindDataReceived, Data: []byte("live")})

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case e := <-sub.C:
			got = append(got, e)
		case <-timeout:
			t.Fatalf("received %d events, want 3", len(got))
		}
	}

	assert.Equal(t, KindSystemOpen, got[0].Kind)
	assert.Equal(t, "historic", string(got[1].Data))
	assert.Equal(t, "live", string(got[2].Data))
}

func TestSubscribeNoGapNoDuplicateUnderConcurrency(t *testing.T) {
	log := NewLog()
	const total = 500

	// Writer appends while the subscriber attaches mid-stream.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			log.Append(Event{Kind: KindDataReceived, Data: []byte(fmt.Sprintf("%d", i))})
		}
	}()

	time.Sleep(time.Millisecond)
	sub := log.Subscribe()
	defer sub.Cancel()
	wg.Wait()

	seen := make(map[string]bool, total)
	timeout := time.After(5 * time.Second)
	for len(seen) < total {
		select {
		case e := <-sub.C:
			key := string(e.Data)
			require.False(t, seen[key], "duplicate event %s", key)
			seen[key] = true
		case <-timeout:
			t.Fatalf("received %d distinct events, want %d", len(seen), total)
		}
	}
}

func TestConcurrentAppendersDeliverInLogOrder(t *testing.T) {
	log := NewLog()
	sub := log.Subscribe()
	defer sub.Cancel()

	// Two appenders racing, as a transport pump and a send caller do. The
	// subscriber must observe the exact log order, which the strictly
	// monotonic stamps encode.
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				log.Append(Event{Kind: KindDataReceived})
			}
		}()
	}
	wg.Wait()

	var prev time.Time
	timeout := time.After(5 * time.Second)
	for n := 0; n < 2*perWriter; n++ {
		select {
		case e := <-sub.C:
			require.True(t, e.Timestamp.After(prev),
				"event %d delivered out of log order", n)
			prev = e.Timestamp
		case <-timeout:
			t.Fatalf("received %d events, want %d", n, 2*perWriter)
		}
	}
}

func TestSlowSubscriberDoesNotBlockAppend(t *testing.T) {
	log := NewLog()
	sub := log.Subscribe()
	defer sub.Cancel()

	// Nothing reads sub.C; appends must still complete promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			log.Append(Event{Kind: KindDataReceived, Data: []byte{1}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("appends blocked on a slow subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	log := NewLog()
	sub := log.Subscribe()
	sub.Cancel()
	sub.Cancel() // idempotent

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("channel not closed after Cancel")
		}
	}
}

func TestClearKeepsSubscribersAlive(t *testing.T) {
	log := NewLog()
	log.Append(Event{Kind: KindSystemOpen})
	log.Clear()
	assert.Equal(t, 0, log.Len())

	sub := log.Subscribe()
	defer sub.Cancel()
	log.Append(Event{Kind: KindDataReceived, Data: []byte("after-clear")})

	select {
	case e := <-sub.C:
		assert.Equal(t, "after-clear", string(e.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no event after Clear")
	}
}

func TestStoreCreateLookupRemove(t *testing.T) {
	store := NewStore()

	log := store.Get("s1")
	require.NotNil(t, log)
	// Same id returns the same log.
	assert.Same(t, log, store.Get("s1"))

	_, ok := store.Lookup("missing")
	assert.False(t, ok)

	got, ok := store.Lookup("s1")
	require.True(t, ok)
	assert.Same(t, log, got)

	store.Remove("s1")
	_, ok = store.Lookup("s1")
	assert.False(t, ok)
}
