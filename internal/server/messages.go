package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-dmrelay/internal/relay"
	"github.com/npezzotti/go-dmrelay/internal/types"
)

// Operations understood by the gateway.
const (
	OpChatSend       = "chat.send"
	OpChatHistory    = "chat.history"
	OpUserConnect    = "user.connect"
	OpUserDisconnect = "user.disconnect"
	OpUsersList      = "users.list"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Op     string          `json:"op"`
	Data   json.RawMessage `json:"data,omitempty"`
	handle string
}

type SendPayload struct {
	SenderId    string `json:"sender_id,omitempty"`
	RecipientId string `json:"recipient_id"`
	Content     string `json:"content"`
}

type HistoryPayload struct {
	RecipientId string `json:"recipient_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response             `json:"response,omitempty"`
	Notification *types.Notification   `json:"notification,omitempty"`
	Presence     *types.PresenceChange `json:"presence,omitempty"`
	// Handle targets one identity's private channel; empty means every
	// connected session.
	Handle string `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func newResponse(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func ErrBadRequest(id int, reason string) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, reason, nil)
}

func ErrNotFound(id int) *ServerMessage {
	return newResponse(id, http.StatusNotFound, "not found", nil)
}

func ErrConflict(id int) *ServerMessage {
	return newResponse(id, http.StatusConflict, "conflict", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrUnknownOp(id int, op string) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, "unknown op "+op, nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := newResponse(0, http.StatusBadRequest, "invalid message format", nil)
	if id > 0 {
		msg.Id = id
	}
	return msg
}

// errorResponse maps a relay failure to a response frame.
func (m *ServerMessage) succeeded() bool {
	return m != nil && m.Response != nil && m.Response.ResponseCode == http.StatusOK
}

func errorResponse(id int, err error) *ServerMessage {
	var verr *relay.ValidationError
	switch {
	case errors.As(err, &verr):
		return ErrBadRequest(id, verr.Error())
	case errors.Is(err, relay.ErrNotFound):
		return ErrNotFound(id)
	case errors.Is(err, relay.ErrConflict):
		return ErrConflict(id)
	case errors.Is(err, relay.ErrStorage):
		return ErrServiceUnavailable(id)
	default:
		return ErrInternalError(id)
	}
}

func NotificationMessage(n types.Notification) *ServerMessage {
	return &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &n,
		Handle:       n.RecipientId,
	}
}

func PresenceMessage(handle, status string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence: &types.PresenceChange{
			Handle: handle,
			Status: status,
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
