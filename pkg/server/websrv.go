package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/textmoor/textmoor/pkg/events"
)

// WebServer provides HTTP/WebSocket transport alongside the TCP game server.
type WebServer struct {
	game      *Game
	httpSrv   *http.Server
	mux       *http.ServeMux
	auth      *AuthService
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewWebServer creates a web server bound to the game.
func NewWebServer(game *Game, cfg Config) *WebServer {
	ws := &WebServer{
		game:      game,
		mux:       http.NewServeMux(),
		auth:      NewAuthService(cfg.JWTSecret, cfg.JWTExpirySeconds),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)
	ws.mux.HandleFunc("POST /api/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("GET /healthz", ws.handleHealth)
	if game.Metrics != nil {
		ws.mux.Handle("GET /metrics", game.Metrics.Handler())
	}

	ws.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebPort),
		Handler: ws.mux,
	}
	return ws
}

// Start begins listening and blocks until the server is shut down.
func (ws *WebServer) Start() error {
	log.Printf("Web server listening on %s", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

// WSMessage is the JSON frame format for WebSocket communication.
type WSMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Actor   string `json:"actor,omitempty"`
	Seq     int    `json:"seq,omitempty"`
	Command string `json:"command,omitempty"`
}

// wsSession is one WebSocket client. It implements events.Subscriber,
// framing each event as JSON. Like the telnet Descriptor, delivery enqueues
// onto a buffered channel drained by a single writer goroutine so a slow
// client cannot stall the broadcaster.
type wsSession struct {
	sessionID string
	conn      *websocket.Conn
	outbound  chan events.Event
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWSSession(conn *websocket.Conn) *wsSession {
	w := &wsSession{
		sessionID: uuid.NewString(),
		conn:      conn,
		outbound:  make(chan events.Event, outboundBuffer),
		done:      make(chan struct{}),
	}
	go w.writeLoop()
	return w
}

func (w *wsSession) sendJSON(msg WSMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	w.conn.WriteJSON(msg)
}

func (w *wsSession) writeLoop() {
	for {
		select {
		case ev := <-w.outbound:
			w.sendJSON(WSMessage{
				Type:  ev.Type.String(),
				Text:  ev.Text,
				Actor: ev.Actor,
				Seq:   ev.Seq,
			})
		case <-w.done:
			return
		}
	}
}

// Receive implements events.Subscriber. It never blocks; a full queue closes
// the session instead.
func (w *wsSession) Receive(ev events.Event) {
	if w.Closed() {
		return
	}
	select {
	case w.outbound <- ev:
	default:
		log.Printf("[ws:%s] outbound queue full, dropping connection", w.sessionID)
		w.close()
	}
}

// Closed implements events.Subscriber.
func (w *wsSession) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *wsSession) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
		w.conn.Close()
	}
}

var _ events.Subscriber = (*wsSession)(nil)

// handleWebSocket upgrades the connection and attaches the authenticated
// user to a new session. A valid JWT (query param or bearer header) is
// required; clients obtain one from POST /api/login.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
			token = ah[7:]
		}
	}
	claims, err := ws.auth.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	sess := newWSSession(conn)
	if ws.game.Metrics != nil {
		ws.game.Metrics.SessionOpened("websocket")
	}

	if err := ws.game.ConnectUser(sess.sessionID, claims.UserID, sess); err != nil {
		log.Printf("[ws:%s] connect user %s: %v", sess.sessionID, claims.UserID, err)
		sess.sendJSON(WSMessage{Type: "error", Text: "The world is out of reach right now. Try again in a moment."})
		sess.close()
		return
	}
	sess.sendJSON(WSMessage{Type: "login", Actor: claims.UserID, Text: claims.UserName})
	log.Printf("[ws:%s] User %s connected from %s", sess.sessionID, claims.UserID, r.RemoteAddr)

	go ws.readLoop(sess)
}

func (ws *WebServer) readLoop(sess *wsSession) {
	defer func() {
		ws.game.DisconnectSession(sess.sessionID)
		sess.close()
		if ws.game.Metrics != nil {
			ws.game.Metrics.SessionClosed("websocket")
		}
		log.Printf("[ws:%s] WebSocket closed", sess.sessionID)
	}()

	for {
		_, msgBytes, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws:%s] read error: %v", sess.sessionID, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			sess.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "command":
			if quit := ws.game.HandleLine(sess.sessionID, msg.Command); quit {
				return
			}
		default:
			sess.sendJSON(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
	}
}

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	userID, err := ws.game.Authenticate(req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	token, err := ws.auth.Token(userID, req.Name)
	if err != nil {
		http.Error(w, `{"error":"token generation failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token, "user_id": userID})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"sessions":       ws.game.Sessions.Len(),
		"uptime_seconds": int(time.Since(ws.startTime).Seconds()),
	})
}
