package server

import (
	"context"

	"github.com/npezzotti/go-dmrelay/internal/database"
	"github.com/npezzotti/go-dmrelay/internal/stats"
	"github.com/npezzotti/go-dmrelay/internal/types"
)

func (cs *ChatServer) handleSend(ctx context.Context, msg *ClientMessage) *ServerMessage {
	var p SendPayload
	if err := decodePayload(msg, &p); err != nil {
		return ErrInvalidMessage(msg.Id)
	}

	if p.SenderId != "" && p.SenderId != msg.handle {
		return ErrBadRequest(msg.Id, "sender_id must match the authenticated user")
	}

	m, err := cs.relay.Send(ctx, msg.handle, p.RecipientId, p.Content, msg.Timestamp)
	if err != nil {
		cs.log.Printf("send %q -> %q: %v", msg.handle, p.RecipientId, err)
		return errorResponse(msg.Id, err)
	}

	cs.stats.Incr(stats.NumMessagesRelayed)
	cs.broadcast(NotificationMessage(types.NewNotification(m)))

	return NoErrOK(msg.Id, types.NewMessage(m))
}

func (cs *ChatServer) handleHistory(ctx context.Context, msg *ClientMessage) *ServerMessage {
	var p HistoryPayload
	if err := decodePayload(msg, &p); err != nil {
		return ErrInvalidMessage(msg.Id)
	}

	history, err := cs.relay.History(ctx, msg.handle, p.RecipientId)
	if err != nil {
		cs.log.Printf("history %q <-> %q: %v", msg.handle, p.RecipientId, err)
		return errorResponse(msg.Id, err)
	}

	return NoErrOK(msg.Id, types.NewMessages(history))
}

func (cs *ChatServer) handleConnect(_ context.Context, msg *ClientMessage) *ServerMessage {
	cs.presenceLock.Lock()
	defer cs.presenceLock.Unlock()

	if err := cs.connect(msg.handle); err != nil {
		return errorResponse(msg.Id, err)
	}

	return NoErrOK(msg.Id, types.PresenceChange{Handle: msg.handle, Status: string(database.StatusConnected)})
}

// handleDisconnect marks the handle disconnected. The caller's sessions are
// closed once the reply is queued, so the handle stops receiving
// notifications as soon as it leaves the connected list.
func (cs *ChatServer) handleDisconnect(_ context.Context, msg *ClientMessage) *ServerMessage {
	cs.presenceLock.Lock()
	defer cs.presenceLock.Unlock()

	if err := cs.disconnect(msg.handle); err != nil {
		return errorResponse(msg.Id, err)
	}
	cs.released[msg.handle] = struct{}{}

	return NoErrOK(msg.Id, types.PresenceChange{Handle: msg.handle, Status: string(database.StatusDisconnected)})
}

func (cs *ChatServer) handleListConnected(ctx context.Context, msg *ClientMessage) *ServerMessage {
	connected, err := cs.presence.ListConnected(ctx)
	if err != nil {
		cs.log.Printf("list connected: %v", err)
		return errorResponse(msg.Id, err)
	}

	return NoErrOK(msg.Id, types.NewIdentitySummaries(connected))
}
