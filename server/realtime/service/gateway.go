package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonlog "social_server/server/common/log"
	"social_server/server/realtime/domain"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type wsRequest struct {
	Action        string `json:"action"`
	RoomID        string `json:"room_id"`
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	Text          string `json:"text"`
	AttachmentURL string `json:"attachment_url"`
}

type wsAck struct {
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Message *domain.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Gateway owns one websocket session end to end: upgrade, identify, the
// inbound action loop, and hub cleanup on disconnect.
type Gateway struct {
	hub      *Hub
	delivery *DeliveryService
}

func NewGateway(hub *Hub, delivery *DeliveryService) *Gateway {
	return &Gateway{hub: hub, delivery: delivery}
}

func (g *Gateway) HandleWS(c *gin.Context) {
	userID := ""
	if raw, ok := c.Get("auth_user_id"); ok {
		if id, ok := raw.(string); ok {
			userID = strings.TrimSpace(id)
		}
	}
	userName := ""
	if raw, ok := c.Get("auth_user_name"); ok {
		if name, ok := raw.(string); ok {
			userName = strings.TrimSpace(name)
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	connID := g.hub.Connect(conn)
	defer g.hub.Disconnect(connID)

	ctx := c.Request.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		g.dispatch(ctx, connID, userID, userName, req)
	}
}

func (g *Gateway) dispatch(ctx context.Context, connID, userID, userName string, req wsRequest) {
	switch req.Action {
	case "identify":
		// The socket identity comes from the verified token; a client
		// cannot identify as someone else.
		if req.UserID != "" && req.UserID != userID {
			g.hub.Send(connID, wsAck{Action: req.Action, Error: "user_id does not match session"})
			return
		}
		if userID == "" {
			g.hub.Send(connID, wsAck{Action: req.Action, Error: "unauthorized"})
			return
		}
		g.hub.Identify(connID, userID)
		g.hub.Send(connID, wsAck{Action: req.Action, Success: true})

	case "join":
		isMember, err := g.delivery.IsRoomMember(ctx, req.RoomID, userID)
		if err != nil {
			g.hub.Send(connID, wsAck{Action: req.Action, Error: err.Error()})
			return
		}
		if !isMember {
			g.hub.Send(connID, wsAck{Action: req.Action, Error: "room access denied"})
			return
		}
		g.hub.Join(connID, req.RoomID)
		g.hub.Send(connID, wsAck{Action: req.Action, Success: true})

	case "leave":
		g.hub.Leave(connID, req.RoomID)
		g.hub.Send(connID, wsAck{Action: req.Action, Success: true})

	case "typing", "stop_typing":
		// Relayed verbatim to the other room members, never persisted.
		g.hub.RelayToRoom(req.RoomID, connID, req.Action, domain.TypingEvent{
			RoomID:   req.RoomID,
			UserID:   userID,
			UserName: userName,
		})

	case "send_message":
		var attachment *string
		if strings.TrimSpace(req.AttachmentURL) != "" {
			attachment = &req.AttachmentURL
		}
		created, err := g.delivery.SendMessage(ctx, req.RoomID, userID, req.Text, attachment)
		if err != nil {
			commonlog.Errorf("event=gateway action=send_message status=failed conn_id=%s room_id=%s error=%v", connID, req.RoomID, err)
			g.hub.Send(connID, wsAck{Action: req.Action, Error: err.Error()})
			return
		}
		g.hub.Send(connID, wsAck{Action: req.Action, Success: true, Message: &created})

	default:
		g.hub.Send(connID, wsAck{Action: req.Action, Error: "unknown action"})
	}
}
