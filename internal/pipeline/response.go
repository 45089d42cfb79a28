package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is the materialized HTTP outcome a pipeline run produces. It is a
// plain value so stages can build one without touching the ResponseWriter;
// the engine emits it exactly once at the end of dispatch.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	RedirectTo  string
	Header      http.Header
}

// JSON builds a 200 response with a JSON body.
func JSON(v any) *Response {
	return JSONStatus(v, http.StatusOK)
}

// JSONStatus builds a JSON response with an explicit status code.
func JSONStatus(v any, status int) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return Text(http.StatusInternalServerError, fmt.Sprintf("encode response: %v", err))
	}
	return &Response{
		Status:      status,
		ContentType: "application/json; charset=UTF-8",
		Body:        body,
	}
}

// Text builds a plain-text response.
func Text(status int, body string) *Response {
	return &Response{
		Status:      status,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(body),
	}
}

// HTML builds an HTML response.
func HTML(status int, body []byte) *Response {
	return &Response{
		Status:      status,
		ContentType: "text/html; charset=utf-8",
		Body:        body,
	}
}

// Redirect builds a 302 redirect.
func Redirect(location string) *Response {
	return &Response{
		Status:     http.StatusFound,
		RedirectTo: location,
	}
}

// MethodNotAllowed is the response emitted before any stage runs when the
// request verb is outside the view's allowed set.
func MethodNotAllowed() *Response {
	return Text(http.StatusMethodNotAllowed, "Method Not Allowed")
}

// Write emits the response on w.
func (resp *Response) Write(w http.ResponseWriter) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if resp.RedirectTo != "" {
		w.Header().Set("Location", resp.RedirectTo)
		status := resp.Status
		if status == 0 {
			status = http.StatusFound
		}
		w.WriteHeader(status)
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body) //nolint:errcheck
	}
}
