package pipeline

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/JesseYan/gm-share-tool/internal/rpc"
)

// Plan is what the engine executes: a named, ordered stage configuration with
// an allowed-method set. Views implement it.
type Plan interface {
	Name() string
	Allows(method string) bool
	Stage(slot Slot) Stage
}

// Engine drives the staged dispatch for every view. One engine is shared by
// all views; all per-request state lives in the Context.
type Engine struct {
	logger   *slog.Logger
	loginURL string
	debug    bool
}

// NewEngine creates an engine. loginURL is where anonymous browsers are sent
// when authentication is required; debug enables the `debug` query-parameter
// introspection path and must stay off in production.
func NewEngine(logger *slog.Logger, loginURL string, debug bool) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:   logger,
		loginURL: loginURL,
		debug:    debug,
	}
}

// Dispatch runs the plan's stages for one request and emits the resulting
// response. Requests with a verb outside the plan's allowed set are rejected
// before any stage runs.
func (e *Engine) Dispatch(p Plan, w http.ResponseWriter, r *http.Request, params map[string]string) {
	if !p.Allows(r.Method) {
		MethodNotAllowed().Write(w)
		return
	}

	rc := NewContext(r, params)
	resp := e.run(p, rc)
	if resp == nil {
		e.logger.Error("view produced no response", slog.String("view", p.Name()))
		resp = Text(http.StatusInternalServerError, "server error")
	}
	for _, ck := range rc.cookies {
		http.SetCookie(w, ck)
	}
	resp.Write(w)
}

// run executes the stages and applies fault translation. Unrecovered errors
// propagate as a panic so the hosting server's recoverer turns them into a
// generic 5xx; with debug enabled they are rendered as a diagnostic payload
// instead.
func (e *Engine) run(p Plan, rc *Context) *Response {
	debugging := e.debug && rc.Request.URL.Query().Has("debug")

	err := e.process(p, rc)
	if err != nil {
		resp, unhandled := e.translate(rc, err)
		switch {
		case unhandled == nil:
			rc.Response = resp
		case debugging:
			return e.debugResponse(p, rc, unhandled)
		default:
			panic(unhandled)
		}
	}

	if debugging {
		return e.debugResponse(p, rc, nil)
	}
	return rc.Response
}

// process runs each stage in declared order. A short-circuit result installs
// its response and stops; recorded results land in the context under the
// slot name and as the previous value.
func (e *Engine) process(p Plan, rc *Context) error {
	for slot := SlotPre; slot < NumSlots; slot++ {
		fn := p.Stage(slot)
		if fn == nil {
			continue
		}
		res, err := fn(rc.Request.Context(), rc)
		if err != nil {
			return err
		}
		if halt, ok := res.Halted(); ok {
			rc.Response = halt
			return nil
		}
		if slot.Recording() {
			rc.Set(slot.String(), res.Value())
			rc.prev = res.Value()
		}
	}
	return nil
}

// translate maps categorized upstream faults to responses. It returns the
// original error unchanged for everything it does not recover.
func (e *Engine) translate(rc *Context, err error) (*Response, error) {
	var fault *rpc.Fault
	if !errors.As(err, &fault) {
		return nil, err
	}

	if fault.IsLoginRequired() {
		if IsXHR(rc.Request) {
			return JSON(LoginRequiredBody()), nil
		}
		return Redirect(e.LoginURL(rc.Request)), nil
	}

	if fault.Response != nil {
		return &Response{
			Status:      fault.Response.StatusCode,
			ContentType: fault.Response.ContentType,
			Body:        fault.Response.Body,
		}, nil
	}

	return nil, err
}

// LoginURL builds the login redirect target. GET requests carry the original
// destination as next_url so the user lands back where they started; other
// verbs omit it.
func (e *Engine) LoginURL(r *http.Request) string {
	if r.Method != http.MethodGet {
		return e.loginURL
	}
	q := url.Values{}
	q.Set("next_url", r.URL.RequestURI())
	return e.loginURL + "?" + q.Encode()
}

// IsXHR reports whether the request declares an XML-HTTP-request origin.
func IsXHR(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") != ""
}

// LoginRequiredBody is the fixed structured body served to unauthenticated
// AJAX callers.
func LoginRequiredBody() map[string]any {
	return map[string]any{
		"message": "需要登录",
		"error":   1001,
		"data":    nil,
	}
}
