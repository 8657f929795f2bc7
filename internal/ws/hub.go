package ws

import (
	"encoding/json"
	"sync"

	"go-storefront-ledger/internal/service"

	"github.com/asaskevich/EventBus"
	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Client struct {
	Conn     Conn
	TenantID string
}

// Message is delivered to every client of TenantID.
type Message struct {
	TenantID string
	Payload  []byte
}

type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Hub struct {
	Clients    map[Conn]string
	Register   chan Client
	Unregister chan Conn
	Broadcast  chan Message
	done       chan struct{}
	mutex      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[Conn]string),
		Register:   make(chan Client),
		Unregister: make(chan Conn),
		Broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mutex.Lock()
			for conn := range h.Clients {
				conn.Close()
				delete(h.Clients, conn)
			}
			h.mutex.Unlock()
			return

		case client := <-h.Register:
			h.mutex.Lock()
			h.Clients[client.Conn] = client.TenantID
			h.mutex.Unlock()
			zap.S().Debugw("ws client connected", "tenant_id", client.TenantID)

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn, tenant := range h.Clients {
				if tenant != message.TenantID {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, message.Payload); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

// ClientCount is the number of connected clients of a tenant.
func (h *Hub) ClientCount(tenantID string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	n := 0
	for _, t := range h.Clients {
		if t == tenantID {
			n++
		}
	}
	return n
}

func (h *Hub) publish(tenantID, kind string, data interface{}) {
	payload, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		zap.S().Errorw("ws encode failed", "type", kind, "error", err)
		return
	}
	select {
	case h.Broadcast <- Message{TenantID: tenantID, Payload: payload}:
	case <-h.done:
	}
}

func (h *Hub) onStockChanged(e service.StockChanged) {
	h.publish(e.TenantID, service.TopicStockChanged, e)
}

func (h *Hub) onOrderChanged(e service.OrderChanged) {
	h.publish(e.TenantID, service.TopicOrderChanged, e)
}

// Subscribe forwards ledger and order events from the bus to connected
// dashboards of the same tenant.
func (h *Hub) Subscribe(bus EventBus.Bus) error {
	if err := bus.SubscribeAsync(service.TopicStockChanged, h.onStockChanged, false); err != nil {
		return err
	}
	return bus.SubscribeAsync(service.TopicOrderChanged, h.onOrderChanged, false)
}

func (h *Hub) Unsubscribe(bus EventBus.Bus) {
	_ = bus.Unsubscribe(service.TopicStockChanged, h.onStockChanged)
	_ = bus.Unsubscribe(service.TopicOrderChanged, h.onOrderChanged)
}
