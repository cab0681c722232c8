package ws

import (
	"context"
	"log"
	"sync"
)

type topicMessage struct {
	topic string
	data  []byte
	// last marks the final message of a topic; the hub forgets the topic's
	// snapshot after delivering it.
	last bool
}

// Hub fans messages out to clients subscribed to a topic. Each topic keeps
// its latest message so a client that joins late starts from the current
// state instead of waiting for the next event.
type Hub struct {
	topics     map[string]map[*Client]bool
	latest     map[string][]byte
	broadcast  chan topicMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	logger     *log.Logger

	// done is closed when Run returns. stopMu keeps Register from enqueueing
	// into a hub that will never drain it.
	done    chan struct{}
	stopMu  sync.RWMutex
	stopped bool
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		latest:     make(map[string][]byte),
		broadcast:  make(chan topicMessage, 1024),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run owns the subscriber maps until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			clients, ok := h.topics[client.topic]
			if !ok {
				clients = make(map[*Client]bool)
				h.topics[client.topic] = clients
			}
			clients[client] = true
			total := len(clients)
			snapshot := h.latest[client.topic]
			h.mutex.Unlock()
			if snapshot != nil {
				select {
				case client.send <- snapshot:
				default:
				}
			}
			h.logger.Printf("WS connected | topic=%s clients=%d", client.topic, total)

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			total := h.removeLocked(client)
			h.mutex.Unlock()
			h.logger.Printf("WS disconnected | topic=%s clients=%d", client.topic, total)

		case msg := <-h.broadcast:
			h.mutex.Lock()
			if msg.last {
				delete(h.latest, msg.topic)
			} else {
				h.latest[msg.topic] = msg.data
			}
			snapshot := make([]*Client, 0, len(h.topics[msg.topic]))
			for c := range h.topics[msg.topic] {
				snapshot = append(snapshot, c)
			}
			h.mutex.Unlock()

			for _, client := range snapshot {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer; drop it rather than stall every topic.
					h.mutex.Lock()
					h.removeLocked(client)
					h.mutex.Unlock()
				}
			}
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	h.stopMu.Lock()
	h.stopped = true
	h.stopMu.Unlock()

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, clients := range h.topics {
		for c := range clients {
			close(c.send)
		}
	}
	h.topics = make(map[string]map[*Client]bool)
	for {
		select {
		case c := <-h.register:
			if c != nil {
				close(c.send)
			}
		default:
			return
		}
	}
}

func (h *Hub) removeLocked(client *Client) int {
	clients, ok := h.topics[client.topic]
	if !ok {
		return 0
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
	}
	total := len(clients)
	if total == 0 {
		delete(h.topics, client.topic)
	}
	return total
}

// Register subscribes client. After Run has returned the client is closed
// at once.
func (h *Hub) Register(client *Client) {
	if h == nil || client == nil {
		return
	}
	h.stopMu.RLock()
	defer h.stopMu.RUnlock()
	if h.stopped {
		close(client.send)
		return
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister is a no-op once Run has returned; shutdown already closed every
// subscriber.
func (h *Hub) Unregister(client *Client) {
	if h == nil || client == nil {
		return
	}
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Broadcast(topic string, message []byte) {
	h.enqueue(topicMessage{topic: topic, data: message})
}

// BroadcastFinal delivers the last message of a topic.
func (h *Hub) BroadcastFinal(topic string, message []byte) {
	h.enqueue(topicMessage{topic: topic, data: message, last: true})
}

func (h *Hub) enqueue(msg topicMessage) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Printf("WS broadcast dropped | topic=%s reason=buffer_full", msg.topic)
	}
}

func (h *Hub) ClientCount(topic string) int {
	if h == nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.topics[topic])
}
