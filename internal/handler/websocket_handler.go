// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dataexplorer-comm/internal/model"
	"dataexplorer-comm/internal/utils"
)

// PortSignals is the live indicator state pushed to status clients
type PortSignals struct {
	Connected      bool `json:"connected"`
	TransmitActive bool `json:"transmit_active"`
	ReceiveActive  bool `json:"receive_active"`
}

// WebSocketHandler streams port indicators and telegrams to browsers. It is a
// comm.StatusListener and a service.TelegramPublisher.
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	logger      *utils.ServiceLogger
	eventBus    *EventBus

	signals PortSignals
	mutex   sync.Mutex
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
		eventBus:    NewEventBus(logger),
	}
}

// Start runs event distribution until ctx ends
func (h *WebSocketHandler) Start(ctx context.Context) {
	statusEvents := h.eventBus.Subscribe(EventTypeStatus)
	telegramEvents := h.eventBus.Subscribe(EventTypeTelegram)

	go h.eventBus.Start(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-statusEvents:
				h.broadcast(ClientTypeStatus, "port_status", event)
			case event := <-telegramEvents:
				h.broadcast(ClientTypeTelegrams, "telegram", event)
			}
		}
	}()
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.HandleStatusConnection)
	router.GET("/telegrams", h.HandleTelegramConnection)
}

// HandleStatusConnection streams transmit/receive/connected indicators
func (h *WebSocketHandler) HandleStatusConnection(c *gin.Context) {
	client := h.accept(c, ClientTypeStatus)
	if client == nil {
		return
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      h.Signals(),
		Timestamp: time.Now(),
	})
}

// HandleTelegramConnection streams every received telegram
func (h *WebSocketHandler) HandleTelegramConnection(c *gin.Context) {
	h.accept(c, ClientTypeTelegrams)
}

func (h *WebSocketHandler) accept(c *gin.Context, clientType string) *Client {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return nil
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("type", clientType),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
	return client
}

// SetTransmitActive implements comm.StatusListener
func (h *WebSocketHandler) SetTransmitActive(active bool) {
	h.updateSignals(func(s *PortSignals) bool {
		changed := s.TransmitActive != active
		s.TransmitActive = active
		return changed
	})
}

// SetReceiveActive implements comm.StatusListener
func (h *WebSocketHandler) SetReceiveActive(active bool) {
	h.updateSignals(func(s *PortSignals) bool {
		changed := s.ReceiveActive != active
		s.ReceiveActive = active
		return changed
	})
}

// SetConnected implements comm.StatusListener
func (h *WebSocketHandler) SetConnected(connected bool) {
	h.updateSignals(func(s *PortSignals) bool {
		changed := s.Connected != connected
		s.Connected = connected
		if !connected {
			s.TransmitActive, s.ReceiveActive = false, false
		}
		return changed
	})
}

// Signals returns the current indicator state
func (h *WebSocketHandler) Signals() PortSignals {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.signals
}

func (h *WebSocketHandler) updateSignals(apply func(*PortSignals) bool) {
	h.mutex.Lock()
	changed := apply(&h.signals)
	signals := h.signals
	h.mutex.Unlock()

	if !changed {
		return
	}
	h.eventBus.Publish(Event{
		Type:   EventTypeStatus,
		Source: "port",
		Data: map[string]interface{}{
			"connected":       signals.Connected,
			"transmit_active": signals.TransmitActive,
			"receive_active":  signals.ReceiveActive,
		},
	})
}

// PublishTelegram implements service.TelegramPublisher
func (h *WebSocketHandler) PublishTelegram(t *model.Telegram) {
	h.eventBus.Publish(Event{
		Type:   EventTypeTelegram,
		Source: "acquisition",
		Data: map[string]interface{}{
			"session_id":  t.SessionID.String(),
			"sequence":    t.Sequence,
			"size":        t.Size,
			"read_mode":   t.ReadMode,
			"duration_ms": t.DurationMs,
			"data":        t.Hex,
		},
		Timestamp: t.ReceivedAt,
	})
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Error("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
		})
	case "status":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "port_status",
			Data:      h.Signals(),
			Timestamp: time.Now(),
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
	}
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// broadcast sends event to every client of clientType
func (h *WebSocketHandler) broadcast(clientType, messageType string, event Event) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      messageType,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, id := range h.connections.Broadcast(clientType, messageBytes) {
		h.logger.Warn("Client send channel full during broadcast",
			zap.String("client_id", id),
		)
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
