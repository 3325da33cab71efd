package stage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/selector"
)

// scriptedCaller answers calls from a per-call script and records requests.
type scriptedCaller struct {
	calls atomic.Int32

	mu       sync.Mutex
	requests []backend.Request
	reply    func(n int, id backend.Identity, req backend.Request) (*backend.Response, error)
}

func (c *scriptedCaller) Call(ctx context.Context, id backend.Identity, req backend.Request) (*backend.Response, error) {
	n := int(c.calls.Add(1))
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	resp, err := c.reply(n, id, req)
	if resp != nil {
		resp.Identity = id
	}
	return resp, err
}

func (c *scriptedCaller) lastRequest() backend.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func textReply(text string) (*backend.Response, error) {
	return &backend.Response{Text: text}, nil
}

func newRacer(c selector.Caller) *selector.Selector {
	return selector.New(c, 0, nil)
}

func chatIDs(names ...string) []backend.Identity {
	out := make([]backend.Identity, len(names))
	for i, n := range names {
		out[i] = backend.Identity{Name: n, Kind: backend.KindChat, Model: "m"}
	}
	return out
}

// words returns a sentence of n distinct-looking words.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "news"
	}
	return strings.Join(parts, " ") + "."
}

// body returns k paragraphs of each words.
func body(k, each int) []string {
	out := make([]string, k)
	for i := range out {
		out[i] = words(each)
	}
	return out
}

func jsonReply(title string, paras []string) string {
	data, _ := json.Marshal(map[string]interface{}{"title": title, "paragraphs": paras})
	return string(data)
}
