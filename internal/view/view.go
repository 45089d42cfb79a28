// Package view configures pipeline stage plans. A View is an ordered stage
// list over the engine's fixed slots; capabilities such as the auth gate, the
// WeChat handshake, and page caching are explicit composable options rather
// than an inheritance hierarchy.
package view

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JesseYan/gm-share-tool/internal/pipeline"
)

// View is one endpoint's stage configuration.
type View struct {
	name    string
	methods map[string]bool

	stages    [pipeline.NumSlots]pipeline.Stage
	preHooks  []pipeline.Stage
	postHooks []pipeline.Stage
}

// Option configures a view at construction time.
type Option func(*View)

// New builds a view with the default stage plan: empty init/fetch/transform,
// no-op decoration, and a response stage that installs the render output.
// GET and POST are allowed unless WithMethods overrides.
func New(name string, opts ...Option) *View {
	v := &View{
		name:    name,
		methods: map[string]bool{http.MethodGet: true, http.MethodPost: true},
	}

	emptyMap := func(context.Context, *pipeline.Context) (pipeline.Result, error) {
		return pipeline.Continue(map[string]any{}), nil
	}
	v.stages[pipeline.SlotInit] = emptyMap
	v.stages[pipeline.SlotFetch] = emptyMap
	v.stages[pipeline.SlotTransform] = emptyMap
	v.stages[pipeline.SlotResponse] = installRender

	for _, opt := range opts {
		opt(v)
	}
	return v
}

// installRender is the default response stage: the render slot's value
// becomes the final response.
func installRender(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
	if val, ok := rc.Get(pipeline.SlotRender.String()); ok {
		if resp, ok := val.(*pipeline.Response); ok {
			rc.Response = resp
		}
	}
	return pipeline.Continue(nil), nil
}

// Name implements pipeline.Plan.
func (v *View) Name() string { return v.name }

// Allows implements pipeline.Plan.
func (v *View) Allows(method string) bool { return v.methods[method] }

// Stage implements pipeline.Plan. The pre and post slots run their hook
// chains in registration order; a halt from any hook stops the chain.
func (v *View) Stage(slot pipeline.Slot) pipeline.Stage {
	switch slot {
	case pipeline.SlotPre:
		return chain(v.preHooks, v.stages[pipeline.SlotPre])
	case pipeline.SlotPost:
		return chain(nil, v.stages[pipeline.SlotPost], v.postHooks...)
	default:
		return v.stages[slot]
	}
}

// chain runs hooks then the slot's own stage, then trailing hooks.
func chain(leading []pipeline.Stage, own pipeline.Stage, trailing ...pipeline.Stage) pipeline.Stage {
	all := make([]pipeline.Stage, 0, len(leading)+1+len(trailing))
	all = append(all, leading...)
	if own != nil {
		all = append(all, own)
	}
	all = append(all, trailing...)
	if len(all) == 0 {
		return nil
	}
	return func(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		for _, fn := range all {
			res, err := fn(ctx, rc)
			if err != nil {
				return pipeline.Result{}, err
			}
			if halt, ok := res.Halted(); ok {
				return pipeline.Halt(halt), nil
			}
		}
		return pipeline.Continue(nil), nil
	}
}

// Handler adapts the view to an http.HandlerFunc, forwarding chi route
// parameters as the pipeline's routing arguments.
func (v *View) Handler(e *pipeline.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := map[string]string{}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				params[key] = rctx.URLParams.Values[i]
			}
		}
		e.Dispatch(v, w, r, params)
	}
}

// WithMethods restricts the allowed HTTP verbs.
func WithMethods(methods ...string) Option {
	return func(v *View) {
		v.methods = make(map[string]bool, len(methods))
		for _, m := range methods {
			v.methods[m] = true
		}
	}
}

// WithStage overrides one slot's stage.
func WithStage(slot pipeline.Slot, fn pipeline.Stage) Option {
	return func(v *View) {
		v.stages[slot] = fn
	}
}

// WithPre appends hooks to the pre chain in the order given. Gates
// (authentication, handshake) are pre hooks that short-circuit.
func WithPre(hooks ...pipeline.Stage) Option {
	return func(v *View) {
		v.preHooks = append(v.preHooks, hooks...)
	}
}

// WithPost appends hooks after the view's own post stage.
func WithPost(hooks ...pipeline.Stage) Option {
	return func(v *View) {
		v.postHooks = append(v.postHooks, hooks...)
	}
}
