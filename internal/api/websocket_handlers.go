// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ProjectEvents upgrades to a websocket that streams the workflow events of
// one project. Only the owner may subscribe.
func (h *Handler) ProjectEvents(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	project, err := h.Workflow.GetProject(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	conn, err := h.Hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the handshake error
		h.Hub.logger.Warn("websocket upgrade failed", map[string]interface{}{
			"project_id": project.ID,
			"error":      err.Error(),
		})
		return
	}

	client := newWebSocketClient(conn, project.ID, userID)
	h.Hub.register(client)
	defer h.Hub.unregister(client)

	h.sendJSON(client, map[string]interface{}{
		"type":       "connected",
		"project_id": project.ID,
		"stage":      project.Stage,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})

	go h.writePump(client)
	h.readPump(client)
}

// readPump consumes client frames until the connection drops. The only
// client message understood is {"type":"ping"}.
func (h *Handler) readPump(client *WebSocketClient) {
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))
	})

	for !client.IsClosed() {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Hub.logger.Debug("websocket read ended", map[string]interface{}{
					"project_id": client.projectID,
					"error":      err.Error(),
				})
			}
			return
		}
		client.UpdatePing()
		_ = client.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))

		var message struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &message) == nil && message.Type == "ping" {
			h.sendJSON(client, map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().Unix(),
			})
		}
	}
}

func (h *Handler) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}

// sendJSON queues message without blocking; a full buffer drops it.
func (h *Handler) sendJSON(client *WebSocketClient, message map[string]interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}
