package httptransport

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/store/feed"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type       string `json:"type"`
	Collection string `json:"collection"`
}

type realtimeEvent struct {
	Type       string      `json:"type"`
	Collection string      `json:"collection,omitempty"`
	Items      interface{} `json:"items,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// handleRealtime streams collection snapshots over a websocket. Clients send
// {"type":"listen","collection":...} and receive a snapshot event on every
// change until they send "unlisten" or disconnect.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan realtimeEvent, 16)
	emit := func(ev realtimeEvent) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	go s.readRealtime(ctx, cancel, ws, emit)

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// readRealtime owns the connection's subscriptions and tears them down when
// the client goes away.
func (s *Server) readRealtime(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, emit func(realtimeEvent)) {
	subs := map[string]feed.Unsubscriber{}
	defer func() {
		cancel()
		for _, u := range subs {
			u.Unsubscribe()
		}
	}()

	for {
		var req realtimeRequest
		if err := ws.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if stderrors.As(err, &closeErr) &&
				(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
				return
			}
			s.logger.Debug("websocket read ended", map[string]interface{}{"error": err.Error()})
			return
		}

		switch req.Type {
		case "listen":
			if _, ok := subs[req.Collection]; ok {
				continue
			}
			u, err := s.subscribe(ctx, req.Collection, emit)
			if err != nil {
				emit(realtimeEvent{Type: "error", Collection: req.Collection, Error: errors.AsStandardError(err).Message})
				continue
			}
			subs[req.Collection] = u
		case "unlisten":
			if u, ok := subs[req.Collection]; ok {
				u.Unsubscribe()
				delete(subs, req.Collection)
			}
		case "h":
		default:
			emit(realtimeEvent{Type: "error", Error: "unknown request type " + req.Type})
		}
	}
}

func (s *Server) subscribe(ctx context.Context, collection string, emit func(realtimeEvent)) (feed.Unsubscriber, error) {
	snapshot := func(items interface{}) {
		emit(realtimeEvent{Type: "snapshot", Collection: collection, Items: items})
	}
	switch collection {
	case models.CollectionUsers:
		return s.svc.Admin.SubscribeUsers(ctx, func(users []models.UserProfile) { snapshot(users) })
	case models.CollectionOrders:
		return s.svc.Admin.SubscribeOrders(ctx, func(orders []models.Order) { snapshot(orders) })
	default:
		return s.svc.Admin.SubscribeApplications(ctx, collection, func(apps []map[string]interface{}) { snapshot(apps) })
	}
}
