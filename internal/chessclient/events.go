package chessclient

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-chess/pkg/chessdto"
)

type StreamState string

const (
	StreamDisconnected StreamState = "disconnected"
	StreamConnecting   StreamState = "connecting"
	StreamConnected    StreamState = "connected"
	StreamReconnecting StreamState = "reconnecting"
	StreamFailed       StreamState = "failed"
	// StreamFinished means the server closed the stream after the game ended.
	StreamFinished StreamState = "finished"
)

type EventCallback func(ev *chessdto.Event)

type StateCallback func(state StreamState)

// EventStream follows one game's events, reconnecting when the connection
// drops before the game is over.
type EventStream struct {
	wsURL string

	conn   *websocket.Conn
	connM  sync.Mutex
	state  StreamState
	stateM sync.RWMutex

	eventCbs []EventCallback
	stateCbs []StateCallback
	cbM      sync.RWMutex

	maxReconnectAttempts int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

// NewEventStream follows gameID on an events server, e.g. "ws://host:8081".
func NewEventStream(baseWSURL, gameID string, maxReconnectAttempts int) *EventStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventStream{
		wsURL:                strings.TrimRight(baseWSURL, "/") + "/games/" + gameID + "/events",
		state:                StreamDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

func (s *EventStream) SetHeaderProvider(h HeaderProvider) { s.headerProvider = h }

func (s *EventStream) OnEvent(cb EventCallback) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.eventCbs = append(s.eventCbs, cb)
}

func (s *EventStream) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.stateCbs = append(s.stateCbs, cb)
}

func (s *EventStream) State() StreamState {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

func (s *EventStream) Connect(ctx context.Context) error {
	switch s.State() {
	case StreamConnected, StreamConnecting:
		return nil
	}
	s.setState(StreamConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := s.dial(dialCtx)
	if err != nil {
		s.setState(StreamFailed)
		return err
	}
	s.attach(conn)
	return nil
}

func (s *EventStream) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.buildHeaders(),
	})
	return conn, err
}

func (s *EventStream) attach(conn *websocket.Conn) {
	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StreamConnected)
	s.wg.Add(1)
	go s.listen(conn)
}

func (s *EventStream) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var ev chessdto.Event
		if err := wsjson.Read(s.rootCtx, conn, &ev); err != nil {
			if s.isStopping() {
				return
			}
			_ = conn.Close(websocket.StatusGoingAway, "reconnect")
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.setState(StreamFinished)
				return
			}
			s.setState(StreamDisconnected)
			s.scheduleReconnect()
			return
		}

		s.cbM.RLock()
		callbacks := append([]EventCallback(nil), s.eventCbs...)
		s.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(&ev)
		}
	}
}

func (s *EventStream) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 {
		s.setState(StreamFailed)
		return
	}
	s.setState(StreamReconnecting)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			dialCtx, cancel := context.WithTimeout(s.rootCtx, 10*time.Second)
			conn, err := s.dial(dialCtx)
			cancel()
			if err != nil {
				continue
			}
			s.attach(conn)
			return
		}
		s.setState(StreamFailed)
	}()
}

func (s *EventStream) setState(state StreamState) {
	s.stateM.Lock()
	s.state = state
	s.stateM.Unlock()

	s.cbM.RLock()
	callbacks := append([]StateCallback(nil), s.stateCbs...)
	s.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (s *EventStream) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.connM.Lock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "close")
	}
	s.connM.Unlock()
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *EventStream) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *EventStream) buildHeaders() http.Header {
	hdr := http.Header{}
	if s.headerProvider == nil {
		return hdr
	}
	for k, v := range s.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
