package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/san-kum/bussim/internal/command"
	"github.com/san-kum/bussim/internal/sim"
)

// Client talks to a running Server.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient accepts either host:port or a full http(s) URL.
func NewClient(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("api: client address %q: %w", addr, err)
	}
	return &Client{base: u, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		if json.Unmarshal(data, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(data))
		}
		return nil, &APIError{Status: resp.StatusCode, Message: eb.Error}
	}
	return data, nil
}

// Invoke calls a command by name and returns the raw JSON result.
func (c *Client) Invoke(ctx context.Context, name string, args any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/invoke/"+url.PathEscape(name), args)
}

func (c *Client) Healthz(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/"+APIVersion+"/healthz", nil)
	return err
}

// GetGlobalState returns the state document exactly as the server encoded it.
func (c *Client) GetGlobalState(ctx context.Context) (string, error) {
	raw, err := c.Invoke(ctx, command.GetGlobalState, nil)
	if err != nil {
		return "", err
	}
	var state string
	if err := json.Unmarshal(raw, &state); err != nil {
		return "", fmt.Errorf("api: decode state: %w", err)
	}
	return state, nil
}

func (c *Client) State(ctx context.Context) (sim.Snapshot, error) {
	var snap sim.Snapshot
	data, err := c.do(ctx, http.MethodGet, "/"+APIVersion+"/state", nil)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("api: decode state: %w", err)
	}
	return snap, nil
}

func (c *Client) ToggleBus(ctx context.Context, id uuid.UUID) error {
	_, err := c.do(ctx, http.MethodPost, "/"+APIVersion+"/buses/"+id.String()+"/toggle", nil)
	return err
}

func (c *Client) UpdateSimulationSpeed(ctx context.Context, speed uint32) error {
	_, err := c.do(ctx, http.MethodPut, "/"+APIVersion+"/speed", map[string]uint32{"speed": speed})
	return err
}

func (c *Client) UpdateRefreshRate(ctx context.Context, refreshRate uint64) error {
	_, err := c.do(ctx, http.MethodPut, "/"+APIVersion+"/refresh-rate", map[string]uint64{"refreshRate": refreshRate})
	return err
}

// Stream delivers state frames to fn until ctx is done, fn returns false,
// or the connection drops.
func (c *Client) Stream(ctx context.Context, fn func(sim.Snapshot) bool) error {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + APIVersion + "/stream"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("api: stream dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if f.Type != FrameState || f.State == nil {
			continue
		}
		if !fn(*f.State) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}
