package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-dmrelay/internal/relay"
	"github.com/npezzotti/go-dmrelay/internal/stats"
)

const (
	defaultOpTimeout = 5 * time.Second
	// frameOverhead covers the envelope around the content of a chat.send
	// frame.
	frameOverhead = 1024
	// maxEscapedRuneSize is the JSON encoding of one rune outside the BMP
	// written as an escaped surrogate pair.
	maxEscapedRuneSize = 12
	minReadLimit       = 4096
)

// readLimitFor returns the frame size limit that still carries content of
// maxLength characters in any valid JSON encoding.
func readLimitFor(maxLength int) int64 {
	limit := int64(maxLength)*maxEscapedRuneSize + frameOverhead
	if limit < minReadLimit {
		return minReadLimit
	}
	return limit
}

// opHandler serves one client operation and returns the reply for the
// calling session.
type opHandler func(ctx context.Context, msg *ClientMessage) *ServerMessage

type stopReq struct {
	done chan struct{}
}

type ChatServer struct {
	log          *log.Logger
	relay        *relay.MessageRelay
	presence     *relay.PresenceTracker
	stats        stats.StatsProvider
	routes       map[string]opHandler
	clients      map[*Client]struct{}
	userMap      map[string]map[*Client]struct{}
	clientsLock  sync.RWMutex
	presenceLock sync.Mutex
	sessions     sync.WaitGroup
	// released holds handles marked disconnected by user.disconnect whose
	// sessions are still closing. Guarded by presenceLock.
	released      map[string]struct{}
	stopped       bool
	broadcastChan chan *ServerMessage
	stop          chan stopReq
	opTimeout     time.Duration
	readLimit     int64
}

func NewChatServer(logger *log.Logger, mr *relay.MessageRelay, pt *relay.PresenceTracker, su stats.StatsProvider) (*ChatServer, error) {
	if mr == nil || pt == nil {
		return nil, fmt.Errorf("relay and presence tracker are required")
	}

	cs := &ChatServer{
		log:           logger,
		relay:         mr,
		presence:      pt,
		stats:         su,
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[string]map[*Client]struct{}),
		released:      make(map[string]struct{}),
		broadcastChan: make(chan *ServerMessage, 256),
		stop:          make(chan stopReq),
		opTimeout:     defaultOpTimeout,
		readLimit:     readLimitFor(mr.MaxLength()),
	}

	cs.routes = map[string]opHandler{
		OpChatSend:       cs.handleSend,
		OpChatHistory:    cs.handleHistory,
		OpUserConnect:    cs.handleConnect,
		OpUserDisconnect: cs.handleDisconnect,
		OpUsersList:      cs.handleListConnected,
	}

	cs.stats.RegisterMetric(stats.NumActiveClients)
	cs.stats.RegisterMetric(stats.NumConnectedUsers)
	cs.stats.RegisterMetric(stats.NumMessagesRelayed)
	cs.stats.RegisterMetric(stats.NumDeliveryFailures)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case msg := <-cs.broadcastChan:
			cs.handleBroadcast(msg)
		case req := <-cs.stop:
			cs.log.Println("stopping client sessions")
			for _, c := range cs.allClients() {
				c.stopClient()
			}

			close(req.done)
			return
		}
	}
}

// Shutdown stops the hub and waits until every session has run its
// disconnect cleanup.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.presenceLock.Lock()
	cs.stopped = true
	cs.presenceLock.Unlock()

	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	drained := make(chan struct{})
	go func() {
		cs.sessions.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cs.opTimeout)
}

// addClient returns true when c is the first live session for its handle.
func (cs *ChatServer) addClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	sessions, ok := cs.userMap[c.handle]
	if !ok {
		sessions = make(map[*Client]struct{})
		cs.userMap[c.handle] = sessions
	}
	sessions[c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)

	return len(sessions) == 1
}

// removeClient reports whether c was registered, and whether it was the last
// live session for its handle.
func (cs *ChatServer) removeClient(c *Client) (removed, last bool) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false, false
	}

	delete(cs.clients, c)
	cs.stats.Decr(stats.NumActiveClients)

	sessions := cs.userMap[c.handle]
	delete(sessions, c)
	if len(sessions) == 0 {
		delete(cs.userMap, c.handle)
		return true, true
	}

	return true, false
}

func (cs *ChatServer) getClients(handle string) []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.userMap[handle]))
	for c := range cs.userMap[handle] {
		clients = append(clients, c)
	}

	return clients
}

func (cs *ChatServer) allClients() []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}

	return clients
}

// RegisterClient adds a live session. The first session of a handle marks
// it connected and announces it on the public channel. Once Shutdown has
// begun the session is stopped instead.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	cs.presenceLock.Lock()
	defer cs.presenceLock.Unlock()

	if cs.stopped {
		cs.log.Printf("rejecting session %s for %q: shutting down", c.id, c.handle)
		c.stopClient()
		return false
	}

	cs.sessions.Add(1)
	cs.log.Printf("adding session %s for %q", c.id, c.handle)

	_, released := cs.released[c.handle]
	delete(cs.released, c.handle)
	first := cs.addClient(c)
	if first {
		cs.stats.Incr(stats.NumConnectedUsers)
	}
	if !first && !released {
		return true
	}

	cs.connect(c.handle)
	return true
}

// DeRegisterClient removes a session. The last session of a handle marks it
// disconnected. It runs on every exit path of the session's read loop.
func (cs *ChatServer) DeRegisterClient(c *Client) {
	cs.presenceLock.Lock()
	defer cs.presenceLock.Unlock()

	removed, last := cs.removeClient(c)
	if !removed {
		return
	}
	defer cs.sessions.Done()

	cs.log.Printf("removed session %s for %q", c.id, c.handle)
	if !last {
		return
	}

	cs.stats.Decr(stats.NumConnectedUsers)
	if _, ok := cs.released[c.handle]; ok {
		delete(cs.released, c.handle)
		return
	}
	cs.disconnect(c.handle)
}

// releaseSessions stops every session of handle after user.disconnect has
// marked it disconnected. Replies already queued are still written.
func (cs *ChatServer) releaseSessions(handle string) {
	for _, c := range cs.getClients(handle) {
		c.stopClient()
	}
}

func (cs *ChatServer) connect(handle string) error {
	ctx, cancel := cs.opContext()
	defer cancel()

	i, err := cs.presence.Connect(ctx, handle)
	if err != nil {
		cs.log.Printf("connect %q: %v", handle, err)
		return err
	}

	cs.broadcast(PresenceMessage(i.Handle, string(i.Status)))
	return nil
}

func (cs *ChatServer) disconnect(handle string) error {
	ctx, cancel := cs.opContext()
	defer cancel()

	i, err := cs.presence.Disconnect(ctx, handle)
	if err != nil {
		cs.log.Printf("disconnect %q: %v", handle, err)
		return err
	}

	cs.broadcast(PresenceMessage(i.Handle, string(i.Status)))
	return nil
}

// broadcast hands msg to the hub without blocking the caller.
func (cs *ChatServer) broadcast(msg *ServerMessage) bool {
	select {
	case cs.broadcastChan <- msg:
		return true
	default:
		cs.log.Println("broadcast channel full, dropping message")
		cs.stats.Incr(stats.NumDeliveryFailures)
		return false
	}
}

func (cs *ChatServer) handleBroadcast(msg *ServerMessage) {
	var clients []*Client
	if msg.Handle == "" {
		clients = cs.allClients()
	} else {
		clients = cs.getClients(msg.Handle)
		if len(clients) == 0 {
			cs.log.Printf("no live session for %q, message stored only", msg.Handle)
			return
		}
	}

	for _, c := range clients {
		if !c.queueMessage(msg) {
			cs.stats.Incr(stats.NumDeliveryFailures)
		}
	}
}

// dispatch routes msg through the routing table.
func (cs *ChatServer) dispatch(msg *ClientMessage) *ServerMessage {
	handler, ok := cs.routes[msg.Op]
	if !ok {
		return ErrUnknownOp(msg.Id, msg.Op)
	}

	ctx, cancel := cs.opContext()
	defer cancel()

	return handler(ctx, msg)
}

func decodePayload(msg *ClientMessage, v any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(msg.Data, v)
}
