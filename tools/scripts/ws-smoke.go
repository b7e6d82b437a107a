// Package main provides a CI-friendly WebSocket smoke test for the sauat presence hub.
//
// It validates:
//   - handshake + subprotocol selection
//   - initial count on connect
//   - ActiveCountChanged fanout when a second client joins and leaves
//   - count_get replies
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "sauat/contracts/presence/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 4 << 10

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/hubs/presence", "Presence hub URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	run := time.Now().UnixNano()

	a := mustConnect(root, "A", keyedURL(*wsURL, fmt.Sprintf("smoke-a-%d", run)), *origin, *timeout)
	defer closeWS(a.conn)
	base := a.mustReadCount(root, *timeout)

	b := mustConnect(root, "B", keyedURL(*wsURL, fmt.Sprintf("smoke-b-%d", run)), *origin, *timeout)
	if got := b.mustReadCount(root, *timeout); got != base+1 {
		fatalf("B initial count: got=%d want=%d", got, base+1)
	}
	if got := a.mustReadCount(root, *timeout); got != base+1 {
		fatalf("A join broadcast: got=%d want=%d", got, base+1)
	}

	mustWriteWithTimeout(root, a.conn, v1.Envelope{V: v1.Version, Type: v1.TypeCountGet, TS: time.Now().UTC()}, *timeout)
	if got := a.mustReadCount(root, *timeout); got != base+1 {
		fatalf("count_get reply: got=%d want=%d", got, base+1)
	}

	closeWS(b.conn)
	if got := a.mustReadCount(root, *timeout); got != base {
		fatalf("A leave broadcast: got=%d want=%d", got, base)
	}

	if *verbose {
		fmt.Printf("counts: base=%d joined=%d origin=%q\n", base, base+1, *origin)
	}
	fmt.Printf("OK: presence hub %s base=%d\n", *wsURL, base)
}

func keyedURL(raw, key string) string {
	u, err := url.Parse(raw)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("u", key)
	u.RawQuery = q.Encode()
	return u.String()
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch (%s): got=%q want=%q", name, got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *smokeClient) mustReadCount(parent context.Context, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		fatalf("timeout waiting for count (%s): %v", c.name, ctx.Err())
	case err := <-c.errCh:
		fatalf("connection error waiting for count (%s): %v", c.name, err)
	case env, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed waiting for count (%s)", c.name)
		}
		if env.Type == v1.TypeError {
			var ep v1.ErrorPayload
			_ = json.Unmarshal(env.Payload, &ep)
			fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
		}
		if env.Type != v1.TypeActiveCountChanged {
			fatalf("unexpected envelope type (%s): %q", c.name, env.Type)
		}
		var p v1.CountPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal count payload (%s): %v", c.name, err)
		}
		return p.Count
	}
	return 0
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
