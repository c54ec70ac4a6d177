package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-chess/pkg/chessdto"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// Subscriber delivers the events of one game; games.Hub satisfies it.
type Subscriber interface {
	Subscribe(gameID string) (<-chan chessdto.Event, func())
}

// Events streams game events over websockets at /games/{id}/events.
type Events struct {
	svc  GameService
	subs Subscriber
	log  *zap.Logger
	srv  *http.Server

	// OriginPatterns is passed to websocket.Accept; empty allows same origin only.
	OriginPatterns []string
}

func NewEvents(svc GameService, subs Subscriber, logger *zap.Logger) *Events {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Events{svc: svc, subs: subs, log: logger}
	e.srv = &http.Server{Handler: e, ReadHeaderTimeout: 10 * time.Second}
	return e
}

func (e *Events) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	e.log.Info("events_listen", zap.String("addr", addr))
	err = e.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (e *Events) Shutdown(ctx context.Context) error {
	return e.srv.Shutdown(ctx)
}

func (e *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "games" || parts[2] != "events" {
		http.NotFound(w, r)
		return
	}
	id := parts[1]

	// 존재하지 않는 게임은 업그레이드 전에 거절.
	initial, err := e.svc.Get(r.Context(), id)
	if err != nil {
		status, _ := domainError(err)
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  e.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		e.log.Warn("events_accept_failed", zap.String("game_id", id), zap.Error(err))
		return
	}
	e.stream(r.Context(), conn, id, initial)
}

func (e *Events) stream(ctx context.Context, conn *websocket.Conn, id string, initial *chessdto.GameState) {
	defer conn.CloseNow()
	events, unsubscribe := e.subs.Subscribe(id)
	defer unsubscribe()

	// Reads only service control frames; the stream is one-way.
	ctx = conn.CloseRead(ctx)

	e.log.Debug("events_subscribed", zap.String("game_id", id))
	if err := e.write(ctx, conn, chessdto.Event{Type: chessdto.EventState, State: initial}); err != nil {
		return
	}
	if initial.Over {
		conn.Close(websocket.StatusNormalClosure, "game over")
		return
	}

	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "game closed")
				return
			}
			if err := e.write(ctx, conn, ev); err != nil {
				e.log.Debug("events_write_failed", zap.String("game_id", id), zap.Error(err))
				return
			}
			if ev.Type == chessdto.EventEnd {
				conn.Close(websocket.StatusNormalClosure, "game over")
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (e *Events) write(ctx context.Context, conn *websocket.Conn, ev chessdto.Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}
