package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"sauat/cmd/security/token"
	v1 "sauat/contracts/presence/v1"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	wsDefaultSendQueueSize = 32
	wsMinSendQueueSize     = 4
	wsReplyQueueSize       = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSGateway is the WebSocket entrypoint for presence.
//
// Each accepted socket registers its key with the Tracker, receives the current
// count, and then receives every ActiveCountChanged event until either side closes.
type WSGateway struct {
	log     *slog.Logger
	tracker *Tracker

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout time.Duration
	// Zero disables the idle read deadline; presence clients may stay silent.
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
}

// NewWSGateway constructs a gateway with secure defaults.
func NewWSGateway(log *slog.Logger, tracker *Tracker) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if tracker == nil {
		tracker = NewTracker(log)
	}

	g := &WSGateway{log: log, tracker: tracker}

	// NOTE: InsecureSkipVerify is a dev-only knob that disables websocket.Accept's own origin check.
	g.devInsecure = envBoolWS("SAUAT_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("SAUAT_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)

	// The browser client is the same for REST and websocket, so the CORS list is the fallback.
	allowed := strings.TrimSpace(os.Getenv("SAUAT_WS_ALLOWED_ORIGINS"))
	if allowed == "" {
		allowed = strings.TrimSpace(os.Getenv("SAUAT_CORS_ALLOWED_ORIGINS"))
	}
	if allowed == "" {
		allowed = wsDefaultAllowedOrigins
	}
	g.allowedOrigins = splitCSV(allowed)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("SAUAT_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("SAUAT_WS_READ_IDLE_TIMEOUT", 0)

	g.sendQueueSize = envIntWS("SAUAT_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("SAUAT_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("SAUAT_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the presence loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("presence.ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	key := strings.TrimSpace(r.URL.Query().Get("u"))
	if len(key) > maxKeyChars {
		http.Error(w, "connection key too long", http.StatusBadRequest)
		return
	}
	if key == "" {
		key = uuid.NewString()
	}
	keyFP := token.Fingerprint(key)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("presence.ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("presence.ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.tracker.Connect(key)
	sub, initial := g.tracker.SubscribeWithCount(g.sendQueueSize)
	replies := make(chan v1.Envelope, wsReplyQueueSize)

	g.log.Debug("presence.ws.open", "key_fp", keyFP, "count", initial)

	var closeOnce sync.Once

	// shutdown is idempotent. Every exit path counts as a disconnect.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.tracker.Disconnect(key)
			sub.Close()
			_ = conn.Close(code, reason)
			cancel()
			g.log.Debug("presence.ws.close", "key_fp", keyFP, "reason", reason)
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		write := func(env v1.Envelope) bool {
			if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
				g.log.Info("presence.ws.write.fail", "key_fp", keyFP, "close_status", websocket.CloseStatus(err), "err", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return false
			}
			return true
		}

		if !write(v1.NewCountEnvelope(initial, time.Now().UTC())) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				shutdown(websocket.StatusGoingAway, "server shutting down")
				return
			case ev := <-sub.C():
				if !write(v1.NewCountEnvelope(ev.Count, time.Now().UTC())) {
					return
				}
			case env := <-replies:
				if !write(env) {
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("presence.ws.ping.fail", "key_fp", keyFP, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		env, err := g.read(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				enqueue(replies, v1.NewErrorEnvelope("bad_json", "invalid JSON", time.Now().UTC()))
				continue readLoop
			default:
				g.log.Info("presence.ws.read.fail", "key_fp", keyFP, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if err := env.Validate(); err != nil {
			enqueue(replies, v1.NewErrorEnvelope("bad_envelope", err.Error(), time.Now().UTC()))
			continue readLoop
		}

		switch env.Type {
		case v1.TypeCountGet:
			enqueue(replies, v1.NewCountEnvelope(g.tracker.Count(), time.Now().UTC()))
		default:
			enqueue(replies, v1.NewErrorEnvelope("unsupported", fmt.Sprintf("unsupported type: %s", env.Type), time.Now().UTC()))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *WSGateway) read(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	if g.readIdleTimeout <= 0 {
		return readEnvelope(ctx, conn)
	}
	readCtx, cancel := context.WithTimeout(ctx, g.readIdleTimeout)
	defer cancel()
	return readEnvelope(readCtx, conn)
}

// enqueue drops the reply when the queue is full; replies are advisory.
func enqueue(ch chan<- v1.Envelope, env v1.Envelope) bool {
	select {
	case ch <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

var errBadJSON = errors.New("invalid JSON")

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if errors.Is(err, errBadJSON) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ":*")
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins turns the allowlist into websocket.Accept patterns.
// Accept matches patterns against the origin host including its port, and enforceOrigin
// admits any port of an allowed host, so each host yields both "host" and "host:*".
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	out := make([]string, 0, 2*len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			out = append(out, "*")
			continue
		}
		h := strings.Trim(originHostOnly(a), "[]")
		if h == "" {
			continue
		}
		if strings.Contains(h, ":") {
			// IPv6 literal; brackets are character classes to path.Match.
			h = `\[` + h + `\]`
		}
		out = append(out, h, h+":*")
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
