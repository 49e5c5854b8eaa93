// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

const (
	wsSendBuffer    = 32
	wsPingInterval  = 30 * time.Second
	wsPingTimeout   = 60 * time.Second
	wsWriteDeadline = 10 * time.Second
)

// WebSocketConnection is the part of *websocket.Conn the hub uses.
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient is one subscriber of a project's events.
type WebSocketClient struct {
	conn      WebSocketConnection
	projectID string
	userID    string
	send      chan []byte
	done      chan struct{}
	closed    int32
	lastPing  atomic.Int64 // unix nanos
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, projectID, userID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		projectID: projectID,
		userID:    userID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close closes the connection once. The send channel stays open; the write
// pump exits on done.
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
}

func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired reports whether no pong arrived within timeout.
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// EventHub fans workflow events out to the websocket subscribers of each
// project. It implements workflow.Notifier.
type EventHub struct {
	mu          sync.RWMutex
	connections map[string]map[*WebSocketClient]struct{} // projectID -> clients
	pingTimeout time.Duration
	upgrader    websocket.Upgrader
	logger      *utils.FieldLogger

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewEventHub creates a hub that accepts upgrades from allowedOrigin ("*"
// accepts any origin) and sweeps expired clients in the background.
func NewEventHub(allowedOrigin string, logger *utils.Logger) *EventHub {
	if logger == nil {
		logger = utils.GetLogger()
	}
	hub := &EventHub{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		pingTimeout: wsPingTimeout,
		logger:      logger.WithFields(map[string]interface{}{"component": "ws"}),
		stop:        make(chan struct{}),
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigin),
	}

	hub.wg.Add(1)
	go hub.run()
	return hub
}

func originChecker(allowedOrigin string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowedOrigin == "" || allowedOrigin == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		return origin == "" || strings.EqualFold(origin, allowedOrigin)
	}
}

func (hub *EventHub) run() {
	defer hub.wg.Done()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hub.cleanupExpiredConnections()
		case <-hub.stop:
			hub.shutdown()
			return
		}
	}
}

func (hub *EventHub) register(client *WebSocketClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.connections[client.projectID] == nil {
		hub.connections[client.projectID] = make(map[*WebSocketClient]struct{})
	}
	hub.connections[client.projectID][client] = struct{}{}

	hub.logger.Debug("subscriber connected", map[string]interface{}{
		"project_id": client.projectID,
		"user_id":    client.userID,
	})
}

func (hub *EventHub) unregister(client *WebSocketClient) {
	hub.mu.Lock()
	if clients, ok := hub.connections[client.projectID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(hub.connections, client.projectID)
		}
	}
	hub.mu.Unlock()

	client.Close()
	hub.logger.Debug("subscriber disconnected", map[string]interface{}{
		"project_id": client.projectID,
		"user_id":    client.userID,
	})
}

func (hub *EventHub) cleanupExpiredConnections() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for projectID, clients := range hub.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(hub.pingTimeout) {
				delete(clients, client)
				client.Close()
			}
		}
		if len(clients) == 0 {
			delete(hub.connections, projectID)
		}
	}
}

// Publish sends event to every subscriber of its project. A subscriber whose
// buffer is full is disconnected rather than waited for.
func (hub *EventHub) Publish(event models.WorkflowEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("encode event", map[string]interface{}{"error": err.Error()})
		return
	}

	hub.mu.RLock()
	clients := make([]*WebSocketClient, 0, len(hub.connections[event.ProjectID]))
	for client := range hub.connections[event.ProjectID] {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	hub.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			hub.logger.Warn("subscriber too slow, disconnecting", map[string]interface{}{
				"project_id": client.projectID,
				"user_id":    client.userID,
			})
			client.Close()
		}
	}
}

// Subscribers returns the number of open connections for projectID.
func (hub *EventHub) Subscribers(projectID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	n := 0
	for client := range hub.connections[projectID] {
		if !client.IsClosed() {
			n++
		}
	}
	return n
}

func (hub *EventHub) shutdown() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for _, clients := range hub.connections {
		for client := range clients {
			client.Close()
		}
	}
	hub.connections = make(map[string]map[*WebSocketClient]struct{})
}

// Close disconnects every subscriber and stops the sweeper.
func (hub *EventHub) Close() {
	hub.closeOnce.Do(func() {
		close(hub.stop)
		hub.wg.Wait()
	})
}
