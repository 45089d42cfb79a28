package pipeline

import (
	"net/http"

	"github.com/JesseYan/gm-share-tool/internal/platform"
	"github.com/JesseYan/gm-share-tool/internal/rpc"
	"github.com/JesseYan/gm-share-tool/internal/session"
)

// Context is the per-request carrier every stage reads and writes. Exactly
// one exists per inbound request, owned by the dispatch that created it; it
// is discarded once the response is emitted.
//
// Named fields hold the values the common pre stage and the auth decorators
// establish; recorded stage outputs and ad-hoc values live in the slot table.
type Context struct {
	Request *http.Request
	Params  map[string]string

	// Populated by the common pre stage.
	SessionKey string
	HasLogin   bool
	Session    *session.Session
	UserAgent  string
	Platform   platform.Platform
	FromClient bool
	RPC        rpc.Invoker

	// Populated by the credential-handshake decorator.
	OpenID string
	Grant  any

	// Template selected for rendering views.
	Template string

	// Response is the final outcome; installed by the response stage, a
	// short-circuit, or the fault translator.
	Response *Response

	prev    any
	slots   map[string]any
	cookies []*http.Cookie
}

// AddCookie queues a cookie to be set on the final response, whatever stage
// ends up producing it.
func (c *Context) AddCookie(ck *http.Cookie) {
	c.cookies = append(c.cookies, ck)
}

// NewContext creates the context for one inbound request.
func NewContext(r *http.Request, params map[string]string) *Context {
	if params == nil {
		params = map[string]string{}
	}
	return &Context{
		Request: r,
		Params:  params,
		slots:   make(map[string]any),
	}
}

// Set stores an ad-hoc value or a recorded stage output.
func (c *Context) Set(name string, v any) {
	c.slots[name] = v
}

// Get reads a stored slot.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.slots[name]
	return v, ok
}

// Prev returns the most recent recording stage's value.
func (c *Context) Prev() any {
	return c.prev
}

// PrevMap returns the previous stage value as a map, creating an empty one
// when the stage produced nothing map-shaped. Decoration stages use it to
// enrich whatever the transform produced.
func (c *Context) PrevMap() map[string]any {
	if m, ok := c.prev.(map[string]any); ok && m != nil {
		return m
	}
	m := map[string]any{}
	c.prev = m
	return m
}

// slotValues returns a copy of the slot table for diagnostics.
func (c *Context) slotValues() map[string]any {
	out := make(map[string]any, len(c.slots))
	for k, v := range c.slots {
		out[k] = v
	}
	return out
}
