package rest

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/easyspace-ai/easygrid/internal/application/services"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// RealtimeHandler bridges WebSocket clients onto the OT channel. Each
// connection may subscribe to any number of documents; ops submitted by the
// client go through the same version gate as server-side writes.
type RealtimeHandler struct {
	channel  *services.OTChannel
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new RealtimeHandler
func NewRealtimeHandler(channel *services.OTChannel) *RealtimeHandler {
	return &RealtimeHandler{
		channel: channel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth happens before the upgrade; origin is not
			// a trust boundary here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// clientMessage is what the browser sends.
type clientMessage struct {
	Type       string         `json:"type"` // subscribe, unsubscribe, submit
	Collection string         `json:"collection"`
	DocID      string         `json:"docId"`
	V          int64          `json:"v,omitempty"`
	Ops        []models.OTOp  `json:"ops,omitempty"`
}

// serverMessage is what the engine sends back.
type serverMessage struct {
	Type       string         `json:"type"` // snapshot, op, ack, error
	Collection string         `json:"collection,omitempty"`
	DocID      string         `json:"docId,omitempty"`
	V          int64          `json:"v,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Ops        []models.OTOp  `json:"ops,omitempty"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// Serve handles GET /ws
func (h *RealtimeHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	session := &realtimeSession{
		handler: h,
		conn:    conn,
		out:     make(chan serverMessage, 256),
		subs:    make(map[string]func()),
	}
	session.run(c.Request.Context())
}

// realtimeSession is the per-connection state. The writer goroutine owns
// the socket for writes; everyone else goes through the out channel.
type realtimeSession struct {
	handler *RealtimeHandler
	conn    *websocket.Conn
	out     chan serverMessage

	mu   sync.Mutex
	subs map[string]func()
}

func (s *realtimeSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.teardown()

	go s.writeLoop(ctx)
	s.readLoop(ctx)
}

func (s *realtimeSession) readLoop(ctx context.Context) {
	for {
		var msg clientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ WebSocket read error: %v", err)
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			s.subscribe(ctx, msg.Collection, msg.DocID)
		case "unsubscribe":
			s.unsubscribe(msg.Collection, msg.DocID)
		case "submit":
			s.submit(ctx, msg)
		default:
			s.send(serverMessage{Type: "error", Code: "UNKNOWN_MESSAGE", Message: "unknown message type: " + msg.Type})
		}
	}
}

func (s *realtimeSession) writeLoop(ctx context.Context) {
	for {
		select {
		case msg, ok := <-s.out:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *realtimeSession) subscribe(ctx context.Context, collection, docID string) {
	key := collection + "/" + docID

	s.mu.Lock()
	if _, exists := s.subs[key]; exists {
		s.mu.Unlock()
		return
	}
	ch, cancel := s.handler.channel.Subscribe(ctx, collection, docID)
	s.subs[key] = cancel
	s.mu.Unlock()

	snapshot, _ := s.handler.channel.Snapshot(collection, docID)
	s.send(serverMessage{
		Type:       "snapshot",
		Collection: collection,
		DocID:      docID,
		V:          snapshot.V,
		Data:       snapshot.Data,
	})

	go func() {
		for msg := range ch {
			s.send(serverMessage{
				Type:       "op",
				Collection: msg.Collection,
				DocID:      msg.DocID,
				V:          msg.V,
				Ops:        msg.Ops,
			})
		}
	}()
}

func (s *realtimeSession) unsubscribe(collection, docID string) {
	key := collection + "/" + docID
	s.mu.Lock()
	cancel, ok := s.subs[key]
	if ok {
		delete(s.subs, key)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *realtimeSession) submit(ctx context.Context, msg clientMessage) {
	version, err := s.handler.channel.SubmitOp(ctx, msg.Collection, msg.DocID, msg.V, msg.Ops)
	if err != nil {
		s.send(serverMessage{
			Type:       "error",
			Collection: msg.Collection,
			DocID:      msg.DocID,
			Code:       apperrors.GetErrorCode(err),
			Message:    err.Error(),
		})
		return
	}
	s.send(serverMessage{Type: "ack", Collection: msg.Collection, DocID: msg.DocID, V: version})
}

// send queues a message; a slow client loses messages rather than blocking
// the broadcast path.
func (s *realtimeSession) send(msg serverMessage) {
	select {
	case s.out <- msg:
	default:
		log.Printf("⚠️ Dropping realtime message to slow client (%s/%s)", msg.Collection, msg.DocID)
	}
}

func (s *realtimeSession) teardown() {
	s.mu.Lock()
	cancels := make([]func(), 0, len(s.subs))
	for _, cancel := range s.subs {
		cancels = append(cancels, cancel)
	}
	s.subs = map[string]func(){}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	_ = s.conn.Close()
}
