package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
	wsSendBuffer = 32
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// wsCommand is one client event. Only the fields its type needs are read.
type wsCommand struct {
	Type      string                      `json:"type"`
	Text      string                      `json:"text"`
	Index     int                         `json:"index"`
	Delta     int                         `json:"delta"`
	Confirm   bool                        `json:"confirm"`
	Miles     int                         `json:"miles"`
	Location  *domain.UserLocation        `json:"location"`
	Candidate *domain.SuggestionCandidate `json:"candidate"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn    *websocket.Conn
	session *session.Session
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// handleSessionWS binds one WebSocket connection to one input session.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if s.suggest == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "suggest service is not configured")
		return
	}
	q := r.URL.Query()
	location, err := parseUserLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if location == nil {
		location = s.lookupLocation(r)
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	sess := session.New(s.suggest, session.Config{
		Variant:      session.ParseVariant(q.Get("variant")),
		Mobile:       parseOptionalBool(q.Get("mobile")),
		RadiusMiles:  parsePositiveInt(q.Get("radius"), s.radiusMiles),
		UserLocation: location,
		ResultsPath:  s.resultsPath,
		Logger:       s.logger,
		Geocoder:     s.geocoder,
	})
	client := &wsClient{
		conn:    conn,
		session: sess,
		send:    make(chan []byte, wsSendBuffer),
		done:    make(chan struct{}),
		logger:  s.logger.With(slog.String("session", sess.ID())),
	}
	sub := sess.Subscribe(func(event session.Event) {
		client.enqueue(wsMessage{Type: string(event.Type), Data: event})
	})
	client.logger.Debug("ws session opened")

	client.enqueue(wsMessage{Type: "session", Data: sess.Snapshot()})
	go client.writePump()
	client.readPump()

	sub.Unsubscribe()
	sess.Close()
	client.stop()
	client.logger.Debug("ws session closed")
}

func (c *wsClient) enqueue(msg wsMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Warn("ws client too slow, closing")
		c.stop()
	}
}

func (c *wsClient) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.stop()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("ws read failed", slog.String("error", err.Error()))
			}
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.sendError("invalid_request", "malformed event")
			continue
		}
		c.dispatch(cmd)
	}
}

// dispatch maps a client event onto the session. Commits run inline, so a
// geocode lookup delays later events from the same connection.
func (c *wsClient) dispatch(cmd wsCommand) {
	sess := c.session
	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case "input":
		sess.Input(cmd.Text)
	case "highlight":
		sess.Highlight(cmd.Index)
	case "move":
		sess.MoveHighlight(cmd.Delta)
	case "enter":
		sess.Enter()
	case "select":
		if cmd.Candidate != nil {
			sess.SelectCandidate(*cmd.Candidate)
			return
		}
		sess.Select(cmd.Index)
	case "blur":
		sess.Blur(cmd.Confirm)
	case "escape":
		sess.Escape()
	case "outside":
		sess.OutsideClick()
	case "search":
		sess.SearchButton()
	case "radius":
		sess.SetRadius(cmd.Miles)
	case "location":
		sess.SetUserLocation(cmd.Location)
	default:
		c.sendError("invalid_request", "unknown event type")
	}
}

func (c *wsClient) sendError(code, message string) {
	c.enqueue(wsMessage{Type: "error", Data: map[string]string{
		"code":    code,
		"message": message,
	}})
}
