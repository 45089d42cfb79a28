// Package share wires the concrete share-page endpoints: the shared page
// views, the app download redirect, and the WeChat auth entry points.
package share

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-chi/chi/v5"

	"github.com/JesseYan/gm-share-tool/internal/cache"
	"github.com/JesseYan/gm-share-tool/internal/pipeline"
	"github.com/JesseYan/gm-share-tool/internal/platform"
	"github.com/JesseYan/gm-share-tool/internal/rpc"
	"github.com/JesseYan/gm-share-tool/internal/session"
	"github.com/JesseYan/gm-share-tool/internal/view"
	"github.com/JesseYan/gm-share-tool/internal/wechat"
)

//go:embed templates/*.html
var templateFS embed.FS

// Deps carries everything the share endpoints need.
type Deps struct {
	Engine      *pipeline.Engine
	Sessions    *session.Manager
	RPC         rpc.Invoker
	Client      *wechat.Client
	Credentials *wechat.CredentialCache
	Authorizer  *wechat.Authorizer
	Pages       *cache.PageCache

	URLBase       string
	ChannelCookie string
}

// Register mounts all share endpoints on the router.
func Register(r chi.Router, deps Deps) error {
	tpl, err := template.New("share").Funcs(sprig.FuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("parse share templates: %w", err)
	}

	common := view.CommonPre(view.CommonDeps{Sessions: deps.Sessions, RPC: deps.RPC})
	decorate := view.PageDecorate(view.DecorateDeps{
		URLBase:       deps.URLBase,
		ChannelCookie: deps.ChannelCookie,
		Credentials:   deps.Credentials,
	})

	sharePage := view.New("share_page",
		view.WithMethods(http.MethodGet),
		view.WithPre(common),
		view.WithStage(pipeline.SlotInit, shareInit),
		view.WithStage(pipeline.SlotFetch, shareFetch),
		view.WithStage(pipeline.SlotTransform, shareTransform),
		view.WithStage(pipeline.SlotDecorate, decorate),
		view.WithStage(pipeline.SlotRender, view.TemplateRender(tpl, "share.html")),
		view.WithPageCache(deps.Pages, 5*time.Minute, func(rc *pipeline.Context) string {
			return rc.Params["id"] + ":" + rc.Platform.String()
		}),
	)

	download := view.New("download",
		view.WithMethods(http.MethodGet),
		view.WithPre(common),
		view.WithStage(pipeline.SlotRender, downloadRender(deps.ChannelCookie)),
	)

	userInfo := view.New("user_info",
		view.WithMethods(http.MethodGet, http.MethodPost),
		view.WithPre(common, view.AuthGate(deps.Engine)),
		view.WithStage(pipeline.SlotFetch, userInfoFetch),
		view.WithStage(pipeline.SlotTransform, passthroughTransform),
		view.WithStage(pipeline.SlotRender, view.JSONRender()),
	)

	wxProfile := view.New("wx_profile",
		view.WithMethods(http.MethodGet),
		view.WithPre(view.WeChatGate(deps.Sessions, deps.Authorizer), common),
		view.WithStage(pipeline.SlotFetch, wxProfileFetch(deps.Client)),
		view.WithStage(pipeline.SlotTransform, passthroughTransform),
		view.WithStage(pipeline.SlotRender, view.JSONRender()),
	)

	wxAuth := view.New("wx_auth",
		view.WithMethods(http.MethodGet),
		view.WithStage(pipeline.SlotRender, wxAuthRender(deps.Client)),
	)

	r.Get("/share/{id}", sharePage.Handler(deps.Engine))
	r.Get("/download", download.Handler(deps.Engine))
	r.Method(http.MethodGet, "/api/user_info", userInfo.Handler(deps.Engine))
	r.Method(http.MethodPost, "/api/user_info", userInfo.Handler(deps.Engine))
	r.Get("/wx/profile", wxProfile.Handler(deps.Engine))
	r.Get("/wx/auth", wxAuth.Handler(deps.Engine))

	return nil
}

// shareInit pulls the routing arguments into the context.
func shareInit(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
	return pipeline.Continue(map[string]any{
		"id": rc.Params["id"],
	}), nil
}

// shareFetch loads the shared content from the platform RPC layer. A
// login-required fault here is translated exactly like one raised at the pre
// stage.
func shareFetch(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
	init, _ := rc.Get(pipeline.SlotInit.String())
	id := init.(map[string]any)["id"].(string)

	var content map[string]any
	params := url.Values{}
	params.Set("id", id)
	if err := rc.RPC.Call(ctx, "api/share/detail", params, &content); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Continue(content), nil
}

// shareTransform shapes the fetched content for the template.
func shareTransform(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
	content, _ := rc.Prev().(map[string]any)
	out := map[string]any{}
	for _, k := range []string{"title", "content", "image", "author"} {
		if v, ok := content[k]; ok {
			out[k] = v
		}
	}
	return pipeline.Continue(out), nil
}

// passthroughTransform forwards the fetch result unchanged.
func passthroughTransform(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
	return pipeline.Continue(rc.Prev()), nil
}

// userInfoFetch loads the logged-in user's profile over RPC.
func userInfoFetch(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
	var user map[string]any
	if err := rc.RPC.Call(ctx, "api/user_info", nil, &user); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Continue(user), nil
}

// wxProfileFetch returns the WeChat profile for the handshook user.
func wxProfileFetch(client *wechat.Client) pipeline.Stage {
	return func(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		grant, ok := rc.Grant.(wechat.Grant)
		if !ok {
			return pipeline.Continue(map[string]any{"openid": rc.OpenID}), nil
		}
		profile, err := client.FetchUserInfo(ctx, grant.AccessToken, grant.OpenID)
		if err != nil {
			// Profile fetch trouble should not break the page.
			return pipeline.Continue(map[string]any{"openid": rc.OpenID}), nil
		}
		return pipeline.Continue(map[string]any{
			"openid":     profile.OpenID,
			"nickname":   profile.Nickname,
			"headimgurl": profile.HeadImgURL,
		}), nil
	}
}

// downloadRender redirects to the download link for the request's channel
// and platform.
func downloadRender(channelCookie string) pipeline.Stage {
	return func(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		channel := ""
		if c, err := rc.Request.Cookie(channelCookie); err == nil {
			channel = c.Value
		}
		return pipeline.Continue(pipeline.Redirect(platform.DownloadURL(channel, rc.Platform))), nil
	}
}

// wxAuthRender is the code-relay endpoint: a request arriving with an
// authorization code exchanges it and forwards openid and access token to
// the caller-supplied redirect URL; without a code it bounces the user to
// the consent page first.
func wxAuthRender(client *wechat.Client) pipeline.Stage {
	return func(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		q := rc.Request.URL.Query()
		redirectURL := q.Get("redirect_url")

		if code := q.Get("code"); code != "" {
			grant, err := client.ExchangeCode(ctx, code)
			if err != nil {
				return pipeline.Result{}, fmt.Errorf("exchange auth code: %w", err)
			}
			params := url.Values{}
			params.Set("openid", grant.OpenID)
			params.Set("access_token", grant.AccessToken)
			params.Set("from", "weixin")
			return pipeline.Continue(pipeline.Redirect(redirectURL + "?" + params.Encode())), nil
		}

		if !strings.HasPrefix(redirectURL, "http") {
			redirectURL = wechat.AbsoluteURL(rc.Request)
		}
		return pipeline.Continue(pipeline.Redirect(client.ConsentURL(redirectURL, wechat.ScopeUserInfo, ""))), nil
	}
}
