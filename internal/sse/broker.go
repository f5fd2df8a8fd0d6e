// Package sse streams document change notifications over Server-Sent Events.
//
// Every message carries a monotonically increasing id. Clients may narrow
// their stream to a single document with ?document=<id>; such streams only
// receive that document's document.* events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types emitted by the broker.
const (
	DocumentCreated = "document.created"
	DocumentUpdated = "document.updated"
	DocumentDeleted = "document.deleted"
	CorpusChanged   = "corpus.changed"
)

const defaultKeepAlive = 15 * time.Second

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DocumentChange is the payload of the document.* events.
type DocumentChange struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often idle streams receive a comment line.
// Zero or negative disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

type subscription struct {
	ch       chan []byte
	document string
}

type outgoing struct {
	event    Event
	document string
}

// Broker fans events out to SSE clients.
//
// A single loop goroutine owns the subscriptions, the message sequence and
// the summary throttle; public methods talk to it over channels.
type Broker struct {
	summaryMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	outCh         chan outgoing
	changeCh      chan outgoing
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that emits at most one corpus.changed summary
// per throttle interval.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		summaryMin:    throttle,
		keepAlive:     defaultKeepAlive,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		outCh:         make(chan outgoing, 256),
		changeCh:      make(chan outgoing, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	go b.run()
	return b
}

func encode(seq uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload), nil
}

func changeType(kind string) (string, bool) {
	switch kind {
	case "created":
		return DocumentCreated, true
	case "updated":
		return DocumentUpdated, true
	case "deleted":
		return DocumentDeleted, true
	}
	return "", false
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan []byte]string)
	var (
		seq         uint64
		lastSummary time.Time
		pending     int
	)

	// send delivers to every matching subscriber. Events without a
	// document only reach unfiltered streams.
	send := func(o outgoing) {
		seq++
		raw, err := encode(seq, o.event)
		if err != nil {
			return
		}
		for ch, doc := range subs {
			if doc != "" && doc != o.document {
				continue
			}
			select {
			case ch <- raw:
			default:
				// slow reader, message dropped
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s.ch] = s.document

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case o := <-b.outCh:
			send(o)

		case o := <-b.changeCh:
			send(o)
			pending++
			if now := time.Now(); now.Sub(lastSummary) >= b.summaryMin {
				lastSummary = now
				send(outgoing{event: Event{Type: CorpusChanged, Data: map[string]int{"changes": pending}}})
				pending = 0
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for every event.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeDocument("")
}

// SubscribeDocument registers a client for the events of one document.
// An empty id subscribes to everything.
func (b *Broker) SubscribeDocument(id string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{ch: ch, document: id}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event that is not tied to a document. Only unfiltered
// streams receive it.
func (b *Broker) Publish(event Event) {
	b.enqueue(b.outCh, outgoing{event: event})
}

// PublishDocumentEvent announces a stored document change. kind is
// "created", "updated" or "deleted"; other kinds are ignored.
func (b *Broker) PublishDocumentEvent(kind, id, path string) {
	typ, ok := changeType(kind)
	if !ok {
		return
	}
	b.enqueue(b.changeCh, outgoing{
		event:    Event{Type: typ, Data: DocumentChange{ID: id, Path: path}},
		document: id,
	})
}

func (b *Broker) enqueue(ch chan outgoing, o outgoing) {
	if b.closed.Load() {
		return
	}
	select {
	case ch <- o:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events). The optional
// document query parameter restricts the stream to one document.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeDocument(r.URL.Query().Get("document"))
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
