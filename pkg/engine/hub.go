package engine

import (
	"context"

	"posebridge/pkg/protocol"
)

// Hub fans decoded samples out to subscribers. Slow subscribers lose
// samples instead of stalling the publisher.
type Hub struct {
	broadcast  chan protocol.Sample
	register   chan chan protocol.Sample
	unregister chan chan protocol.Sample
	clients    map[chan protocol.Sample]struct{}
	clientBuf  int
	done       chan struct{}
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan protocol.Sample, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan protocol.Sample, 256),
		register:   make(chan chan protocol.Sample),
		unregister: make(chan chan protocol.Sample),
		clients:    make(map[chan protocol.Sample]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case sample := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- sample:
				default:
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan protocol.Sample {
	return h.SubscribeWithBuffer(h.clientBuf)
}

// SubscribeWithBuffer returns a closed channel once Run has exited.
func (h *Hub) SubscribeWithBuffer(size int) chan protocol.Sample {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan protocol.Sample, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan protocol.Sample) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Publish queues sample for broadcast. It drops the sample once Run has
// exited.
func (h *Hub) Publish(sample protocol.Sample) {
	select {
	case h.broadcast <- sample:
	case <-h.done:
	}
}
