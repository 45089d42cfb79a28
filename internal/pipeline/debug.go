package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// debugResponse serializes the per-stage context into a diagnostic JSON body.
// Only reachable when the engine was built with debug enabled and the request
// carries a debug query parameter. `debug=data` narrows the dump to the
// transform slot.
func (e *Engine) debugResponse(p Plan, rc *Context, dispatchErr error) *Response {
	var payload any
	if rc.Request.URL.Query().Get("debug") == "data" {
		payload, _ = rc.Get(SlotTransform.String())
	} else {
		snap := map[string]any{
			"view":            p.Name(),
			"allowed_methods": allowedMethods(p),
			"stage_list":      stageList(),
			"session_key":     rc.SessionKey,
			"has_login":       rc.HasLogin,
			"platform":        rc.Platform.String(),
			"user_agent":      rc.UserAgent,
			"from_client":     rc.FromClient,
			"openid":          rc.OpenID,
			"params":          rc.Params,
			"slots":           rc.slotValues(),
		}
		if dispatchErr != nil {
			snap["dispatch"] = dispatchErr.Error()
		}
		payload = snap
	}

	body, err := marshalDiagnostic(payload)
	if err != nil {
		return Text(http.StatusInternalServerError, fmt.Sprintf("debug encode: %v", err))
	}
	return &Response{
		Status:      http.StatusOK,
		ContentType: "application/json; charset=utf-8",
		Body:        body,
	}
}

// marshalDiagnostic encodes the payload, coercing values that resist JSON
// encoding to their textual representation, and falls back to an
// ASCII-escaped encoding when the result is not valid UTF-8.
func marshalDiagnostic(payload any) ([]byte, error) {
	body, err := json.MarshalIndent(coerce(payload), "", "    ")
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(body) {
		return json.MarshalIndent(fmt.Sprintf("%q", body), "", "    ")
	}
	return body, nil
}

// coerce makes a value JSON-encodable: containers are walked, anything the
// encoder rejects becomes its fmt representation.
func coerce(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int, int64, float64, json.Number:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = coerce(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = coerce(val)
		}
		return out
	default:
		if _, err := json.Marshal(t); err == nil {
			return t
		}
		return fmt.Sprintf("%v", t)
	}
}

func allowedMethods(p Plan) []string {
	methods := []string{}
	for _, m := range []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodHead,
	} {
		if p.Allows(m) {
			methods = append(methods, m)
		}
	}
	return methods
}

func stageList() []string {
	out := make([]string, NumSlots)
	for s := SlotPre; s < NumSlots; s++ {
		name := s.String()
		if !s.Recording() {
			name += "!"
		}
		out[s] = name
	}
	return out
}
