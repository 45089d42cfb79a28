package view

import (
	"context"

	"github.com/JesseYan/gm-share-tool/internal/pipeline"
	"github.com/JesseYan/gm-share-tool/internal/session"
	"github.com/JesseYan/gm-share-tool/internal/wechat"
)

// AuthGate short-circuits requests without a platform login. AJAX callers
// get the fixed login-required body; browsers are redirected to the login
// page with the original destination preserved on GET.
//
// Must run after CommonPre, which establishes HasLogin.
func AuthGate(e *pipeline.Engine) pipeline.Stage {
	return func(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		if rc.HasLogin {
			return pipeline.Continue(nil), nil
		}
		if pipeline.IsXHR(rc.Request) {
			return pipeline.Halt(pipeline.JSON(pipeline.LoginRequiredBody())), nil
		}
		return pipeline.Halt(pipeline.Redirect(e.LoginURL(rc.Request))), nil
	}
}

// WeChatGate runs the per-user OAuth handshake before anything else. On
// success the user's open ID and grant are installed in the context; every
// failure path short-circuits to the provider's consent page.
//
// Runs before CommonPre so that views composing both still see the grant
// during their own pre hooks; it loads (or mints) the session itself.
func WeChatGate(sessions *session.Manager, auth *wechat.Authorizer) pipeline.Stage {
	return func(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		sess := rc.Session
		if sess == nil {
			sess = sessions.Load(rc.Request)
		}
		if !sess.Exists() {
			minted, cookie := sessions.Mint()
			sess = minted
			rc.AddCookie(cookie)
		}
		rc.Session = sess

		out, err := auth.Authorize(ctx, rc.Request, sess)
		if err != nil {
			return pipeline.Result{}, err
		}
		if out.ConsentURL != "" {
			return pipeline.Halt(pipeline.Redirect(out.ConsentURL)), nil
		}

		rc.OpenID = out.OpenID
		rc.Grant = out.Grant
		return pipeline.Continue(nil), nil
	}
}
