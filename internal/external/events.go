package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"homeweather/internal/types"
)

const (
	defaultMinReconnect = time.Second
	defaultMaxReconnect = 30 * time.Second
	handshakeTimeout    = 10 * time.Second

	subscribeID = 1
)

// ErrAuthRejected is returned by Run when the host refuses the access token.
// Reconnecting cannot fix it.
var ErrAuthRejected = types.NewAppError(types.ErrCodeUpstreamAuth, "host rejected the websocket access token", nil)

// EventStreamConfig configures an EventStream.
type EventStreamConfig struct {
	URL          string
	Token        types.SecretString
	Logger       *slog.Logger
	Dialer       *websocket.Dialer
	MinReconnect time.Duration
	MaxReconnect time.Duration
	SleepFn      SleepFunc
}

// EventStream holds one websocket session to the host, subscribed to
// state_changed, and fans changes out to registered watchers. Run reconnects
// with exponential backoff until its context is cancelled.
type EventStream struct {
	url          string
	token        types.SecretString
	logger       *slog.Logger
	dialer       *websocket.Dialer
	minReconnect time.Duration
	maxReconnect time.Duration
	sleepFn      SleepFunc

	mu       sync.RWMutex
	watchers map[uint64]stateWatcher
	nextID   uint64

	connected atomic.Bool
}

type stateWatcher struct {
	entities map[string]struct{}
	fn       func(types.StateChange)
}

// wsMessage covers every frame the stream reads or writes.
type wsMessage struct {
	ID          int             `json:"id,omitempty"`
	Type        string          `json:"type"`
	AccessToken string          `json:"access_token,omitempty"`
	EventType   string          `json:"event_type,omitempty"`
	Success     *bool           `json:"success,omitempty"`
	Message     string          `json:"message,omitempty"`
	Event       *wsEvent        `json:"event,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
}

type wsEvent struct {
	EventType string            `json:"event_type"`
	Data      types.StateChange `json:"data"`
}

// NewEventStream creates an EventStream. Nothing connects until Run.
func NewEventStream(cfg EventStreamConfig) *EventStream {
	s := &EventStream{
		url:          cfg.URL,
		token:        cfg.Token,
		logger:       cfg.Logger,
		dialer:       cfg.Dialer,
		minReconnect: cfg.MinReconnect,
		maxReconnect: cfg.MaxReconnect,
		sleepFn:      cfg.SleepFn,
		watchers:     make(map[uint64]stateWatcher),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.dialer == nil {
		s.dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if s.minReconnect <= 0 {
		s.minReconnect = defaultMinReconnect
	}
	if s.maxReconnect < s.minReconnect {
		s.maxReconnect = max(defaultMaxReconnect, s.minReconnect)
	}
	if s.sleepFn == nil {
		s.sleepFn = sleepCtx
	}
	return s
}

// WebsocketURL derives the host websocket endpoint from its REST base URL.
func WebsocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse host url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported host url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/websocket"
	return u.String(), nil
}

// WatchStates calls fn for every state change of the given entities. fn runs
// on the stream's read goroutine and must not block.
func (s *EventStream) WatchStates(entityIDs []string, fn func(types.StateChange)) (types.Subscription, error) {
	if len(entityIDs) == 0 || fn == nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "entity ids and callback are required", nil)
	}
	set := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		set[id] = struct{}{}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = stateWatcher{entities: set, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return types.SubscriptionFunc(func() error {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
		return nil
	}), nil
}

// Connected reports whether a subscribed session is live.
func (s *EventStream) Connected() bool {
	return s.connected.Load()
}

// Name implements the health probe contract.
func (s *EventStream) Name() string { return "home_assistant_events" }

// Check fails while the stream is disconnected.
func (s *EventStream) Check(context.Context) error {
	if !s.Connected() {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "event stream is not connected", nil)
	}
	return nil
}

// Run keeps a session open until ctx is cancelled. It returns nil on
// cancellation and ErrAuthRejected when the token is refused.
func (s *EventStream) Run(ctx context.Context) error {
	wait := s.minReconnect
	for {
		subscribed, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAuthRejected) {
			s.logger.ErrorContext(ctx, "event stream authentication failed", "url", s.url)
			return err
		}
		if subscribed {
			wait = s.minReconnect
		}

		s.logger.WarnContext(ctx, "event stream disconnected",
			"error", errString(err), "retry_in", wait.String())
		if err := s.sleepFn(ctx, wait); err != nil {
			return nil
		}
		wait = min(wait*2, s.maxReconnect)
	}
}

// session runs one connection. subscribed reports whether the handshake
// completed, which resets the reconnect backoff.
func (s *EventStream) session(ctx context.Context) (subscribed bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.handshake(conn); err != nil {
		return false, err
	}

	s.connected.Store(true)
	defer s.connected.Store(false)
	s.logger.InfoContext(ctx, "event stream subscribed", "url", s.url)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if msg.Type != "event" || msg.Event == nil || msg.Event.EventType != "state_changed" {
			continue
		}
		s.dispatch(ctx, msg.Event.Data)
	}
}

func (s *EventStream) handshake(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("unexpected first message %q", msg.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: "auth", AccessToken: s.token.Unmask()}); err != nil {
		return fmt.Errorf("write auth: %w", err)
	}
	msg = wsMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	switch msg.Type {
	case "auth_ok":
	case "auth_invalid":
		return ErrAuthRejected
	default:
		return fmt.Errorf("unexpected auth reply %q", msg.Type)
	}

	if err := conn.WriteJSON(wsMessage{ID: subscribeID, Type: "subscribe_events", EventType: "state_changed"}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	for {
		msg = wsMessage{}
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read subscribe result: %w", err)
		}
		if msg.Type != "result" || msg.ID != subscribeID {
			continue
		}
		if msg.Success == nil || !*msg.Success {
			return fmt.Errorf("subscribe rejected: %s", strings.TrimSpace(string(msg.Error)))
		}
		return nil
	}
}

func (s *EventStream) dispatch(ctx context.Context, change types.StateChange) {
	s.mu.RLock()
	var fns []func(types.StateChange)
	for _, w := range s.watchers {
		if _, ok := w.entities[change.EntityID]; ok {
			fns = append(fns, w.fn)
		}
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.ErrorContext(ctx, "state watcher panicked",
						"entity_id", change.EntityID, "panic", fmt.Sprint(r))
				}
			}()
			fn(change)
		}()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
