// Package realtime serves live appointment watches over WebSocket. A client
// opens filtered subscriptions and receives the full recomputed result set on
// every underlying change, plus session state pushes from the auth
// coordinator.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/holisticconnect/holisticconnect/internal/domain/appointment"
	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
)

// Inbound actions.
const (
	ActionWatch   = "watch"
	ActionUnwatch = "unwatch"
)

// Frame types pushed to clients.
const (
	FrameSnapshot  = "snapshot"
	FrameAuthState = "auth_state"
	FrameError     = "error"
)

// ClientMessage is an inbound frame. Action "watch" opens a subscription with
// the embedded filters; "unwatch" closes the subscription named by WatchID.
type ClientMessage struct {
	Action         string     `json:"action"`
	WatchID        int        `json:"watch_id,omitempty"`
	ClientID       *uuid.UUID `json:"client_id,omitempty"`
	PractitionerID *uuid.UUID `json:"practitioner_id,omitempty"`
	Status         *string    `json:"status,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
	Limit          int        `json:"limit,omitempty"`
}

// SnapshotMessage carries the complete result set of one subscription after a
// change. Clients replace their local copy wholesale.
type SnapshotMessage struct {
	Type         string                     `json:"type"`
	WatchID      int                        `json:"watch_id"`
	Appointments []*appointment.Appointment `json:"appointments"`
	Timestamp    time.Time                  `json:"timestamp"`
}

// StateMessage pushes a session snapshot from the auth coordinator.
type StateMessage struct {
	Type  string     `json:"type"`
	State auth.State `json:"state"`
}

// ErrorMessage reports a rejected frame. The connection stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Watcher is the slice of the appointment service the gateway consumes.
type Watcher interface {
	Watch(ctx context.Context, q appointment.Query, fn appointment.WatchFunc) (func(), error)
}

// StateFeed is the slice of the session coordinator the gateway consumes.
type StateFeed interface {
	Subscribe(uid uuid.UUID) (<-chan auth.State, func())
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const sendBuffer = 256

// session is one authenticated connection and its open watches. The watches
// map is owned by the read loop; enqueue and close may race from watch
// callbacks and are serialized by the mutex.
type session struct {
	uid  uuid.UUID
	role string

	mu     sync.Mutex
	send   chan []byte
	closed bool

	watches map[int]func()
	nextID  int
}

func newSession(uid uuid.UUID, role string) *session {
	return &session{
		uid:     uid,
		role:    role,
		send:    make(chan []byte, sendBuffer),
		watches: make(map[int]func()),
	}
}

// enqueue hands a frame to the write pump without blocking the caller. Frames
// for a slow or closed session are dropped; the next snapshot supersedes them
// anyway.
func (s *session) enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// scopedQuery builds the repository query for a watch request. A session may
// only watch appointments it is a party to: when the request names neither
// party the session user is filled in on the side matching their role, and a
// request naming only other people is rejected.
func (s *session) scopedQuery(msg ClientMessage) (appointment.Query, error) {
	q := appointment.Query{
		ClientID:       msg.ClientID,
		PractitionerID: msg.PractitionerID,
		Status:         msg.Status,
		From:           msg.From,
		To:             msg.To,
		Limit:          msg.Limit,
	}
	if q.Limit <= 0 || q.Limit > appointment.DefaultListLimit {
		q.Limit = appointment.DefaultListLimit
	}
	if q.Status != nil && !appointment.ValidStatus(*q.Status) {
		return appointment.Query{}, errors.New("invalid status")
	}

	uid := s.uid
	switch {
	case q.ClientID == nil && q.PractitionerID == nil:
		if s.role == auth.RolePractitioner {
			q.PractitionerID = &uid
		} else {
			q.ClientID = &uid
		}
	case q.ClientID != nil && *q.ClientID == uid:
	case q.PractitionerID != nil && *q.PractitionerID == uid:
	default:
		return appointment.Query{}, errors.New("watch must cover your own appointments")
	}
	return q, nil
}

// Gateway upgrades /ws requests and speaks the watch protocol.
type Gateway struct {
	appts    Watcher
	feed     StateFeed
	origins  []string
	upgrader gorillawebsocket.Upgrader
	log      zerolog.Logger
}

// NewGateway builds the /ws handler. allowedOrigins mirrors the HTTP CORS
// configuration; "*" admits any origin.
func NewGateway(appts Watcher, feed StateFeed, allowedOrigins []string, log zerolog.Logger) *Gateway {
	gw := &Gateway{appts: appts, feed: feed, origins: allowedOrigins, log: log}
	gw.upgrader = gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     gw.checkOrigin,
	}
	return gw
}

func (gw *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range gw.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// RegisterRoutes mounts the WebSocket endpoint on the authenticated group.
func (gw *Gateway) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", gw.Connect)
}

// Connect upgrades the request and starts the read and write pumps. The
// session identity comes from the auth middleware.
func (gw *Gateway) Connect(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}

	ws, err := gw.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sess := newSession(uid, auth.SessionRole(c))
	conn := &gorillaConn{ws}
	go gw.writePump(sess, conn)
	go gw.readPump(sess, conn)
	return nil
}

// readPump consumes inbound frames until the connection drops, then tears
// down every open watch. Outstanding deliveries may still fire briefly; the
// closed session swallows them.
func (gw *Gateway) readPump(sess *session, conn Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		for _, stop := range sess.watches {
			stop()
		}
		sess.close()
		conn.Close()
	}()

	states, stopFeed := gw.feed.Subscribe(sess.uid)
	defer stopFeed()
	go func() {
		for st := range states {
			gw.send(sess, StateMessage{Type: FrameAuthState, State: st})
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			gw.send(sess, ErrorMessage{Type: FrameError, Message: "malformed frame"})
			continue
		}
		gw.handle(ctx, sess, msg)
	}
}

func (gw *Gateway) handle(ctx context.Context, sess *session, msg ClientMessage) {
	switch msg.Action {
	case ActionWatch:
		gw.openWatch(ctx, sess, msg)
	case ActionUnwatch:
		if stop, ok := sess.watches[msg.WatchID]; ok {
			stop()
			delete(sess.watches, msg.WatchID)
		}
	default:
		gw.send(sess, ErrorMessage{Type: FrameError, Message: "unknown action"})
	}
}

func (gw *Gateway) openWatch(ctx context.Context, sess *session, msg ClientMessage) {
	q, err := sess.scopedQuery(msg)
	if err != nil {
		gw.send(sess, ErrorMessage{Type: FrameError, Message: err.Error()})
		return
	}

	sess.nextID++
	id := sess.nextID
	stop, err := gw.appts.Watch(ctx, q, func(items []*appointment.Appointment) {
		views := make([]*appointment.Appointment, 0, len(items))
		for _, a := range items {
			views = append(views, a.ViewFor(sess.uid))
		}
		gw.send(sess, SnapshotMessage{
			Type:         FrameSnapshot,
			WatchID:      id,
			Appointments: views,
			Timestamp:    time.Now().UTC(),
		})
	})
	if err != nil {
		gw.log.Error().Err(err).Str("uid", sess.uid.String()).Msg("failed to open watch")
		gw.send(sess, ErrorMessage{Type: FrameError, Message: "failed to open watch"})
		return
	}
	sess.watches[id] = stop
}

func (gw *Gateway) writePump(sess *session, conn Conn) {
	defer conn.Close()
	for frame := range sess.send {
		if err := conn.WriteMessage(gorillawebsocket.TextMessage, frame); err != nil {
			return
		}
	}
}

func (gw *Gateway) send(sess *session, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		gw.log.Error().Err(err).Msg("marshal websocket frame")
		return
	}
	sess.enqueue(data)
}

// gorillaConn adapts a gorilla connection to the Conn interface.
type gorillaConn struct {
	conn *gorillawebsocket.Conn
}

func (g *gorillaConn) ReadMessage() (int, []byte, error) {
	return g.conn.ReadMessage()
}

func (g *gorillaConn) WriteMessage(messageType int, data []byte) error {
	return g.conn.WriteMessage(messageType, data)
}

func (g *gorillaConn) Close() error {
	return g.conn.Close()
}
