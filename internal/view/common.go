package view

import (
	"context"

	"github.com/JesseYan/gm-share-tool/internal/pipeline"
	"github.com/JesseYan/gm-share-tool/internal/platform"
	"github.com/JesseYan/gm-share-tool/internal/rpc"
	"github.com/JesseYan/gm-share-tool/internal/session"
)

// CommonDeps are the collaborators the common pre stage binds into every
// request context.
type CommonDeps struct {
	Sessions *session.Manager
	RPC      rpc.Invoker
}

// CommonPre establishes the baseline context every downstream stage relies
// on: the session, the login flag, the client platform, and an RPC invoker
// bound to the user's session.
func CommonPre(deps CommonDeps) pipeline.Stage {
	return func(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		sess := rc.Session
		if sess == nil {
			sess = deps.Sessions.Load(rc.Request)
			rc.Session = sess
		}
		rc.SessionKey = sess.ID()
		rc.HasLogin = sess.Exists()

		rc.UserAgent = rc.Request.UserAgent()
		rc.Platform, rc.FromClient = platform.FromUserAgent(rc.UserAgent)

		if deps.RPC != nil {
			rc.RPC = deps.RPC.WithSession(rc.SessionKey)
		}
		return pipeline.Continue(nil), nil
	}
}
