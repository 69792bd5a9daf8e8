// Package otel provides structured observability for reelfeed.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer provides live in-memory inspection for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Feed pipeline events
	KindFetchStart    EventKind = "feed.fetch.start"
	KindFetchComplete EventKind = "feed.fetch.complete"
	KindFetchError    EventKind = "feed.fetch.error"
	KindFetchFallback EventKind = "feed.fetch.fallback"
	KindFeedPromote   EventKind = "feed.promote"
	KindFeedDrop      EventKind = "feed.drop"
	KindFeedEnd       EventKind = "feed.end"

	// Stake round events
	KindBetCheck   EventKind = "bet.check"
	KindBetSubmit  EventKind = "bet.submit"
	KindBetResolve EventKind = "bet.resolve"
	KindBetError   EventKind = "bet.error"

	// Store events
	KindStoreError EventKind = "store.error"

	// UI events
	KindKeyPress   EventKind = "ui.key"
	KindViewRender EventKind = "ui.render"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Trace events
	KindMsgReceived EventKind = "trace.msg_received"
	KindMsgHandled  EventKind = "trace.msg_handled"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "feed", "mlfeed", "settle", "ui", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	Post      string         `json:"post,omitempty"`       // post identity "canister/id"
	Batch     int            `json:"batch,omitempty"`      // fetch batch ordinal
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Source    string         `json:"source,omitempty"`
	Amount    uint64         `json:"amount,omitempty"` // stake amount in sats
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
