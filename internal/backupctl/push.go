package backupctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/edvin/pgbackup/internal/model"
)

// PushResult is what the service reports after receiving a pushed file.
type PushResult struct {
	ID       string `json:"id"`
	Received int64  `json:"received"`
}

// ErrRestoreFailed wraps the error the service reported for a pushed restore.
var ErrRestoreFailed = errors.New("restore failed")

// PushFile uploads a local dump straight into a restore of connID.
func (c *Client) PushFile(ctx context.Context, connID, path string, opts model.RestoreOptions) (*PushResult, error) {
	f, size, err := openDump(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Push(ctx, connID, filepath.Base(path), size, f, opts)
}

// Push sends body as the single request of a restore stream.
func (c *Client) Push(ctx context.Context, connID, fileName string, size int64, body io.Reader, opts model.RestoreOptions) (*PushResult, error) {
	rawOpts, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	q := url.Values{}
	q.Set("fileName", fileName)
	q.Set("size", strconv.FormatInt(size, 10))
	q.Set("options", string(rawOpts))

	req, err := c.newRequest(ctx, http.MethodPost, "/connections/"+pathEscape(connID)+"/restore-stream?"+q.Encode(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if size > 0 {
		req.ContentLength = size
	}

	// Uploads outlive the default request timeout.
	hc := *c.HTTPClient
	hc.Timeout = 0
	c2 := *c
	c2.HTTPClient = &hc

	resp, err := c2.send(req)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", fileName, err)
	}
	var res PushResult
	if err := resp.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PushWebSocket sends a local dump over the websocket endpoint in chunks of
// chunkSize bytes and waits for the restore to finish.
func (c *Client) PushWebSocket(ctx context.Context, connID, path string, opts model.RestoreOptions, chunkSize int) (*PushResult, error) {
	f, size, err := openDump(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wsURL, err := websocketURL(c.url("/connections/" + pathEscape(connID) + "/restore-ws"))
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.APIKey != "" {
		header.Set("X-API-Key", c.APIKey)
	}
	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer ws.CloseNow()

	start := map[string]any{"fileName": filepath.Base(path), "size": size, "options": opts}
	if err := wsjson.Write(ctx, ws, start); err != nil {
		return nil, fmt.Errorf("send header: %w", err)
	}
	var ev streamEvent
	if err := wsjson.Read(ctx, ws, &ev); err != nil {
		return nil, fmt.Errorf("read open event: %w", err)
	}
	if ev.Type != "open" {
		return nil, fmt.Errorf("%w: %s", ErrRestoreFailed, ev.Error)
	}

	buf := make([]byte, chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if err := ws.Write(ctx, websocket.MessageBinary, buf[:n]); err != nil {
				return nil, fmt.Errorf("send chunk: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("read %s: %w", path, rerr)
		}
	}
	if err := ws.Write(ctx, websocket.MessageText, []byte("end")); err != nil {
		return nil, fmt.Errorf("send end: %w", err)
	}

	if err := wsjson.Read(ctx, ws, &ev); err != nil {
		return nil, fmt.Errorf("read done event: %w", err)
	}
	ws.Close(websocket.StatusNormalClosure, "")
	res := &PushResult{ID: ev.ID, Received: ev.Received}
	if ev.Type != "done" || ev.Error != "" {
		return res, fmt.Errorf("%w: %s", ErrRestoreFailed, ev.Error)
	}
	return res, nil
}

type streamEvent struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Received int64  `json:"received"`
	Error    string `json:"error"`
}

func openDump(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return f, st.Size(), nil
}

func websocketURL(httpURL string) (string, error) {
	u, err := url.Parse(httpURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
