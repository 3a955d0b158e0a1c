// Package realtime is a client for the site's JSON hub protocol: an HTTP
// negotiate step followed by a websocket carrying record-separated JSON
// invocations and completions.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTransportUnsupported = errors.New("server offers no websocket transport")
	ErrHandshake            = errors.New("hub handshake rejected")
	ErrInvocation           = errors.New("hub invocation failed")
	ErrClosed               = errors.New("hub closed the connection")
)

const writeTimeout = 3 * time.Second

// Client holds at most one hub connection, reused across invocations while
// the bearer token stays the same. Nothing reads the socket between
// invocations, so the server may close an idle connection; Invoke redials
// once when a reused connection turns out to be dead. It is not safe for
// concurrent use.
type Client struct {
	hubURL string
	http   *http.Client
	log    *zap.Logger

	conn   *websocket.Conn
	token  string
	reused bool // conn has served an earlier invocation
}

func NewClient(hubURL string, hc *http.Client, log *zap.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hubURL: strings.TrimRight(hubURL, "/"), http: hc, log: log}
}

// Connect negotiates and opens a websocket unless one is already open for
// token.
func (c *Client) Connect(ctx context.Context, token string) error {
	if c.conn != nil && c.token == token {
		c.reused = true
		return nil
	}
	c.drop("token changed")

	neg, err := c.negotiate(ctx, token)
	if err != nil {
		return err
	}
	if !offersWebSockets(neg.AvailableTransports) {
		return ErrTransportUnsupported
	}

	wsURL, err := c.socketURL(neg)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}

	if err := handshake(ctx, conn); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake")
		return err
	}

	c.conn = conn
	c.token = token
	c.reused = false
	c.log.Debug("hub connected", zap.String("connection_id", neg.ConnectionID))
	return nil
}

// Invoke calls target and decodes the correlated completion's result into
// out (which may be nil). Any failure drops the connection.
func (c *Client) Invoke(ctx context.Context, target string, args []any, out any) error {
	if c.conn == nil {
		return fmt.Errorf("invoke %s: %w", target, ErrClosed)
	}
	err := c.invoke(ctx, target, args, out)
	if err != nil && c.stale(ctx, err) {
		token := c.token
		c.drop(err.Error())
		c.log.Info("hub connection went stale - reconnecting", zap.String("target", target), zap.Error(err))
		if cerr := c.Connect(ctx, token); cerr != nil {
			return fmt.Errorf("invoke %s: reconnect: %w", target, cerr)
		}
		err = c.invoke(ctx, target, args, out)
	}
	if err != nil {
		c.drop(err.Error())
		return fmt.Errorf("invoke %s: %w", target, err)
	}
	return nil
}

// stale reports whether err looks like a reused connection the server has
// already closed. A hub-side error completion is an answer, not a dead socket.
func (c *Client) stale(ctx context.Context, err error) bool {
	return c.reused && ctx.Err() == nil && !errors.Is(err, ErrInvocation)
}

func (c *Client) invoke(ctx context.Context, target string, args []any, out any) error {
	id := uuid.NewString()
	if args == nil {
		args = []any{}
	}
	if err := writeRecord(ctx, c.conn, invocation{
		Type:         TypeInvocation,
		InvocationID: id,
		Target:       target,
		Arguments:    args,
	}); err != nil {
		return err
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, rec := range splitRecords(data) {
			var env envelope
			if err := json.Unmarshal(rec, &env); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			switch env.Type {
			case TypeCompletion:
				if env.InvocationID != id {
					continue
				}
				if env.Error != "" {
					return fmt.Errorf("%w: %s", ErrInvocation, env.Error)
				}
				if out == nil || len(env.Result) == 0 {
					return nil
				}
				if err := json.Unmarshal(env.Result, out); err != nil {
					return fmt.Errorf("decode result: %w", err)
				}
				return nil
			case TypeClose:
				if env.Error != "" {
					return fmt.Errorf("%w: %s", ErrClosed, env.Error)
				}
				return ErrClosed
			default:
				// pings and server-initiated invocations
			}
		}
	}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.conn = nil
	c.token = ""
	c.reused = false
	return err
}

func (c *Client) drop(reason string) {
	if c.conn == nil {
		return
	}
	c.conn.Close(websocket.StatusGoingAway, "")
	c.conn = nil
	c.token = ""
	c.reused = false
	c.log.Debug("hub connection dropped", zap.String("reason", reason))
}

func (c *Client) negotiate(ctx context.Context, token string) (negotiateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hubURL+"/negotiate?negotiateVersion=1", nil)
	if err != nil {
		return negotiateResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return negotiateResponse{}, fmt.Errorf("negotiate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return negotiateResponse{}, fmt.Errorf("negotiate: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var neg negotiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&neg); err != nil {
		return negotiateResponse{}, fmt.Errorf("decode negotiate: %w", err)
	}
	if neg.Error != "" {
		return negotiateResponse{}, fmt.Errorf("negotiate: %s", neg.Error)
	}
	return neg, nil
}

func (c *Client) socketURL(neg negotiateResponse) (string, error) {
	u, err := url.Parse(c.hubURL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	id := neg.ConnectionToken
	if neg.NegotiateVersion == 0 || id == "" {
		id = neg.ConnectionID
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func offersWebSockets(ts []transport) bool {
	for _, t := range ts {
		if t.Transport == "WebSockets" {
			return true
		}
	}
	return false
}

func handshake(ctx context.Context, conn *websocket.Conn) error {
	if err := writeRecord(ctx, conn, handshakeRequest{Protocol: "json", Version: 1}); err != nil {
		return err
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	recs := splitRecords(data)
	if len(recs) == 0 {
		return fmt.Errorf("%w: empty response", ErrHandshake)
	}
	var hr handshakeResponse
	if err := json.Unmarshal(recs[0], &hr); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if hr.Error != "" {
		return fmt.Errorf("%w: %s", ErrHandshake, hr.Error)
	}
	return nil
}

func writeRecord(ctx context.Context, conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload = append(payload, recordSeparator)

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func splitRecords(data []byte) [][]byte {
	var out [][]byte
	for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(rec)) > 0 {
			out = append(out, rec)
		}
	}
	return out
}
