// Package events broadcasts engine events (trades, scans, controller state)
// to in-process subscribers such as WebSocket clients.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event kinds.
const (
	KindTradeOpened = "trade_opened"
	KindTradeClosed = "trade_closed"
	KindScan        = "scan"
	KindGateDenied  = "gate_denied"
	KindAutoTrade   = "auto_trade"
)

// Event is one broadcast message.
type Event struct {
	Kind string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// FanOut broadcasts events to every subscriber. A subscriber whose buffer
// is full misses the event instead of blocking the publisher.
type FanOut struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	bufSize int
	closed  bool

	// OnDrop is called when an event is dropped for a subscriber.
	OnDrop func(subscriberID int, e Event)
}

// New creates a FanOut with the given buffer size per subscriber.
func New(bufSize int) *FanOut {
	return &FanOut{subs: make(map[int]chan Event), bufSize: bufSize}
}

// Subscribe registers a subscriber and returns its id and channel.
func (f *FanOut) Subscribe() (int, <-chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan Event, f.bufSize)
	if f.closed {
		close(ch)
		return -1, ch
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *FanOut) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

// Publish stamps e (if unstamped) and delivers it to all subscribers.
func (f *FanOut) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.subs {
		select {
		case ch <- e:
		default:
			if f.OnDrop != nil {
				f.OnDrop(id, e)
			} else {
				slog.Warn("subscriber channel full, dropping event", "subscriber", id, "type", e.Kind)
			}
		}
	}
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
	f.closed = true
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// Subscribers returns the number of live subscribers.
func (f *FanOut) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// ChannelStats reports the saturation of every subscriber channel.
func (f *FanOut) ChannelStats() map[int]ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make(map[int]ChannelStat, len(f.subs))
	for id, ch := range f.subs {
		stats[id] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
