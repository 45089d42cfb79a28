package view

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/JesseYan/gm-share-tool/internal/pipeline"
	"github.com/JesseYan/gm-share-tool/internal/platform"
	"github.com/JesseYan/gm-share-tool/internal/wechat"
)

// DecorateDeps configures the shared page decoration stage.
type DecorateDeps struct {
	URLBase       string
	ChannelCookie string

	// Credentials enables the WeChat JS-SDK block. Nil leaves it out.
	Credentials *wechat.CredentialCache
}

// PageDecorate enriches the transform output with the fields every rendered
// page expects: site config, the current user, the download link for the
// request's acquisition channel, and (when enabled) the WeChat JS-SDK
// signature. Credential failures degrade to the empty signature; the page
// still renders.
func PageDecorate(deps DecorateDeps) pipeline.Stage {
	return func(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		obj := rc.PrevMap()

		obj["url_base"] = deps.URLBase
		obj["config"] = map[string]any{
			"url_base":  deps.URLBase,
			"has_login": rc.HasLogin,
		}

		obj["current_user"] = nil
		if rc.SessionKey != "" && rc.RPC != nil {
			var user struct {
				UserID int64 `json:"user_id"`
			}
			if err := rc.RPC.Call(ctx, "api/user_info", nil, &user); err == nil {
				obj["current_user"] = user.UserID
			}
		}

		if deps.Credentials != nil {
			obj["wechat_sdk"] = deps.Credentials.SignPage(ctx, wechat.AbsoluteURL(rc.Request))
		}

		channel := ""
		if c, err := rc.Request.Cookie(deps.ChannelCookie); err == nil {
			channel = c.Value
		}
		obj["download_url"] = platform.DownloadURL(channel, rc.Platform)

		return pipeline.Continue(nil), nil
	}
}

// JSONRender renders the previous stage's value as a JSON response.
func JSONRender() pipeline.Stage {
	return func(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		return pipeline.Continue(pipeline.JSON(rc.Prev())), nil
	}
}

// TemplateRender renders the named template with the previous stage's value.
func TemplateRender(t *template.Template, name string) pipeline.Stage {
	return func(_ context.Context, rc *pipeline.Context) (pipeline.Result, error) {
		var buf bytes.Buffer
		if err := t.ExecuteTemplate(&buf, name, rc.Prev()); err != nil {
			return pipeline.Result{}, fmt.Errorf("render template %s: %w", name, err)
		}
		return pipeline.Continue(pipeline.HTML(http.StatusOK, buf.Bytes())), nil
	}
}
