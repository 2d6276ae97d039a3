package control

import (
	"context"
	"net/http"
	"strings"

	"github.com/teslashibe/framegrab/internal/httpc"
	"github.com/teslashibe/framegrab/pkg/seek"
)

// Client talks to a running control server.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the server at addr ("host:port" or a
// full http URL).
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, http: httpc.Client}
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := httpc.GetJSON(ctx, c.http, c.base+"/api/status", &st)
	return st, err
}

// Seek queues a relative seek of n frames.
func (c *Client) Seek(ctx context.Context, n int64) (seek.Snapshot, error) {
	var snap seek.Snapshot
	err := httpc.PostJSON(ctx, c.http, c.base+"/api/seek", SeekRequest{Increment: &n}, &snap)
	return snap, err
}

// SetPaused sets the pause flag.
func (c *Client) SetPaused(ctx context.Context, paused bool) (seek.Snapshot, error) {
	var snap seek.Snapshot
	err := httpc.PostJSON(ctx, c.http, c.base+"/api/pause", PauseRequest{Paused: &paused}, &snap)
	return snap, err
}

// Toggle flips the pause flag.
func (c *Client) Toggle(ctx context.Context) (seek.Snapshot, error) {
	var snap seek.Snapshot
	err := httpc.PostJSON(ctx, c.http, c.base+"/api/toggle", nil, &snap)
	return snap, err
}
