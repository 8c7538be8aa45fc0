package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/hooky/internal/events"
	"github.com/mattjoyce/hooky/internal/store"
)

// --- Message types ---

type captureMsg store.CapturedRequest

type historyMsg []store.CapturedRequest

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// Client talks to a running hooky server on behalf of one webhook.
type Client struct {
	BaseURL   string
	WebhookID string
	Token     string

	http *http.Client
}

func NewClient(baseURL, webhookID, token string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		WebhookID: webhookID,
		Token:     token,
		http:      &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// readSSE parses an event stream and calls fn for every complete event.
// Comment lines (keep-alives) are ignored. It returns when r is exhausted.
func readSSE(r io.Reader, fn func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var current events.Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				current.At = time.Now()
				current.Data = json.RawMessage(data.String())
				fn(current)
			}
			current = events.Event{}
			data.Reset()
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(line[6:])
		}
	}
	return scanner.Err()
}

// decodeCapture extracts the captured request carried by a new-request event.
func decodeCapture(e events.Event) (store.CapturedRequest, bool) {
	if e.Type != "" && e.Type != events.TypeNewRequest {
		return store.CapturedRequest{}, false
	}
	var req store.CapturedRequest
	if err := json.Unmarshal(e.Data, &req); err != nil || req.ID == "" {
		return store.CapturedRequest{}, false
	}
	return req, true
}

// --- Commands ---

// subscribe connects to the webhook's event stream and feeds captures into
// ch. It returns sseDisconnectedMsg when the connection drops.
func (c *Client) subscribe(ch chan<- store.CapturedRequest) tea.Cmd {
	return func() tea.Msg {
		req, err := c.newRequest(context.Background(), "/api/webhooks/"+c.WebhookID+"/events")
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("event stream: %s", resp.Status))
		}

		_ = readSSE(resp.Body, func(e events.Event) {
			if captured, ok := decodeCapture(e); ok {
				ch <- captured
			}
		})
		return sseDisconnectedMsg{}
	}
}

func receiveNextCapture(ch <-chan store.CapturedRequest) tea.Cmd {
	return func() tea.Msg {
		return captureMsg(<-ch)
	}
}

// fetchHistory loads the most recent page of captured requests.
func (c *Client) fetchHistory() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, "/api/webhooks/"+c.WebhookID+"/requests?size=100")
	if err != nil {
		return errMsg(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errMsg(fmt.Errorf("list requests: %s", resp.Status))
	}

	var page struct {
		Data []store.CapturedRequest `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return errMsg(err)
	}
	return historyMsg(page.Data)
}

// fetchHealth queries the /healthz endpoint.
func (c *Client) fetchHealth() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, "/healthz")
	if err != nil {
		return errMsg(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
