package api

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsMaxMessage = 4096
)

// handleWebSocket handles GET /api/ws. A client joins webhook rooms by
// id and receives a new-request message for every capture in them.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	caller := callerOf(r)
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sub := s.deps.Hub.NewSubscriber(events.DefaultBuffer)
	defer s.deps.Hub.Release(sub)

	out := make(chan wsMessage, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Closing unblocks the read loop when writing fails first.
		defer conn.Close()
		s.wsWriteLoop(ctx, conn, sub, out)
	}()

	out <- wsMessage{Type: wsConnected}

	conn.SetReadLimit(wsMaxMessage)
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		reply := s.wsHandle(ctx, caller, sub, msg)
		select {
		case out <- reply:
		case <-done:
		}
	}

	cancel()
	<-done
}

// wsHandle applies one client message and returns the acknowledgement.
func (s *Server) wsHandle(ctx context.Context, caller access.Caller, sub *events.Subscriber, msg wsMessage) wsMessage {
	switch msg.Type {
	case wsJoin:
		wh, err := s.deps.Webhooks.Access().ResolveViewability(ctx, msg.WebhookID, caller)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				s.logger.Error("websocket join failed", "webhook_id", msg.WebhookID, "error", err)
				return wsMessage{Type: wsError, WebhookID: msg.WebhookID, Error: msgInternal}
			}
			return wsMessage{Type: wsError, WebhookID: msg.WebhookID, Error: http.StatusText(status)}
		}
		s.deps.Hub.Subscribe(wh.ID, sub)
		return wsMessage{Type: wsJoined, WebhookID: wh.ID}
	case wsLeave:
		s.deps.Hub.Unsubscribe(msg.WebhookID, sub)
		return wsMessage{Type: wsLeft, WebhookID: msg.WebhookID}
	default:
		return wsMessage{Type: wsError, Error: "Unknown message type"}
	}
}

// wsWriteLoop is the only goroutine writing to conn.
func (s *Server) wsWriteLoop(ctx context.Context, conn *websocket.Conn, sub *events.Subscriber, out <-chan wsMessage) {
	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()

	write := func(msg wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(msg)
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case msg := <-out:
			if err := write(msg); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := write(wsMessage{Type: ev.Type, WebhookID: ev.Topic, Data: ev.Data}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// checkOrigin accepts same-host origins and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	return slices.Contains(s.config.CORSOrigins, origin) || slices.Contains(s.config.CORSOrigins, "*")
}
