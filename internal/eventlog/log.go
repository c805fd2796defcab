package eventlog

import (
	"sync"
	"time"
)

// Log is the append-only event sequence for a single session. Appends come
// exclusively from the session manager; consumers only read, via Snapshot or
// Subscribe.
type Log struct {
	mu      sync.Mutex
	events  []Event
	subs    map[int]*subscriber
	nextSub int
	lastTS  time.Time
}

// NewLog creates an empty session log.
func NewLog() *Log {
	return &Log{subs: make(map[int]*subscriber)}
}

// Append stamps the event and adds it to the log, then fans it out to live
// subscribers. Timestamps are forced strictly monotonic so that two events
// arriving within clock resolution still order deterministically. The
// fan-out happens under the log lock so concurrent appenders cannot deliver
// to a subscriber in a different order than the log; push only enqueues, so
// holding the lock across it never blocks on a slow consumer.
func (l *Log) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !now.After(l.lastTS) {
		now = l.lastTS.Add(time.Nanosecond)
	}
	l.lastTS = now
	e.Timestamp = now

	l.events = append(l.events, e)
	for _, s := range l.subs {
		s.push(e)
	}
	return e
}

// Snapshot returns a copy of all events appended so far, in order.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Clear drops the buffered history. Live subscribers keep receiving future
// events; this is the only mutation besides Append.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Subscribe returns a subscription that first replays the full history and
// then delivers live events. The replay/live handover happens under the log
// lock, so no event is missed or duplicated at the boundary.
func (l *Log) Subscribe() *Subscription {
	s := newSubscriber()

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = s
	history := make([]Event, len(l.events))
	copy(history, l.events)
	s.queue = history
	l.mu.Unlock()

	go s.run()

	return &Subscription{C: s.ch, log: l, id: id, sub: s}
}

func (l *Log) unsubscribe(id int) *subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.subs[id]
	delete(l.subs, id)
	return s
}

// Subscription is a live, ordered event feed. Cancel releases it; the
// channel is closed once any queued events have drained.
type Subscription struct {
	C    <-chan Event
	log  *Log
	id   int
	sub  *subscriber
	once sync.Once
}

// Cancel detaches the subscription from the log.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if sub := s.log.unsubscribe(s.id); sub != nil {
			sub.stop()
		}
	})
}

// subscriber decouples log appends from consumer reads with an unbounded
// queue, so a slow consumer never blocks the transport pump.
type subscriber struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	ch       chan Event
	done     chan struct{}
	stopped  bool
	stopOnce sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{ch: make(chan Event), done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, e)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.done)
		s.cond.Signal()
		s.mu.Unlock()
	})
}

func (s *subscriber) run() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- e:
		case <-s.done:
			return
		}
	}
}
