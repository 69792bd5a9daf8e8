package otel

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// eventChanSize bounds the emit-to-drain channel. Fetch cycles and key
// presses produce at most a few events each; thousands of buffered events
// means the disk has stalled, and dropping is the right response.
const eventChanSize = 4096

// Logger writes events as JSONL through a single background drain
// goroutine, so emitters never block on disk. The drain goroutine is the
// only writer to w and the only reader of ch; mu guards just the ring
// buffer pointer. Emit is safe from any goroutine, including concurrently
// with Close.
type Logger struct {
	mu        sync.Mutex
	buf       *RingBuffer // nil until SetRingBuffer
	sessionID string      // random hex, fixed for the process lifetime
	ch        chan Event
	w         io.Writer
	dropped   atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a Logger writing JSONL to w and starts its drain
// goroutine. Call Close to flush and stop.
func NewLogger(w io.Writer) *Logger {
	var sid [8]byte
	_, _ = rand.Read(sid[:])

	l := &Logger{
		sessionID: fmt.Sprintf("%x", sid[:]),
		ch:        make(chan Event, eventChanSize),
		w:         w,
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// NewNullLogger creates a Logger that discards output. Close still stops
// the drain goroutine.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

// drain serializes and writes each event, then mirrors it into the ring
// buffer. Marshaling happens here rather than in Emit so callers pay only
// for a channel send. The ring receives the original Event, not a JSON
// round-trip, so non-serialized fields like Dur survive in the overlay.
func (l *Logger) drain() {
	defer close(l.done)
	for e := range l.ch {
		data, err := json.Marshal(e)
		if err != nil {
			l.dropped.Add(1)
			continue
		}
		data = append(data, '\n')
		if _, err := l.w.Write(data); err != nil {
			l.dropped.Add(1)
		}

		l.mu.Lock()
		rb := l.buf
		l.mu.Unlock()
		if rb != nil {
			rb.Push(e)
		}
	}
}

// Emit queues an event for the drain goroutine, stamping Time (if zero)
// and the session id. Never blocks: a full channel or a closed logger
// drops the event and bumps the drop counter. A send racing Close may
// panic on the closed channel; the recover converts that to a drop.
func (l *Logger) Emit(e Event) {
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.sessionID

	select {
	case l.ch <- e:
	default:
		l.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. Nil err is safe.
func (l *Logger) Error(kind EventKind, comp string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	l.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: errStr})
}

// Warn emits a warn-level event.
func (l *Logger) Warn(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// SetRingBuffer attaches a ring buffer for the debug overlay.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = buf
}

// Dropped returns the number of events dropped since creation.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes pending events and stops the drain goroutine. Emit calls
// arriving afterwards are dropped, not panicked. Dropped-event totals are
// reported to stderr so silent loss is at least visible post-session.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done

		if d := l.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "reelfeed: %d events dropped during session %s\n", d, l.sessionID)
		}
	})
}
