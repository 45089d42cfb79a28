package view

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JesseYan/gm-share-tool/internal/cache"
	"github.com/JesseYan/gm-share-tool/internal/session"
	"github.com/JesseYan/gm-share-tool/internal/wechat"
)

func TestWeChatGate_AnonymousGetsSessionAndConsent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call: %s", r.URL.Path)
	}))
	t.Cleanup(upstream.Close)

	sessions := session.NewManager(cache.NewMemoryStore(), "sessionid")
	client := wechat.NewClient("wx123", "secret", wechat.WithBaseURL(upstream.URL))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := wechat.NewAuthorizer(client, wechat.ScopeUserInfo, logger)

	v := New("wx_profile", WithPre(WeChatGate(sessions, auth)))

	rec := httptest.NewRecorder()
	testEngine().Dispatch(v, rec, httptest.NewRequest(http.MethodGet, "http://example.com/wx/profile", nil), nil)

	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, "open.weixin.qq.com/connect/oauth2/authorize") {
		t.Errorf("Location = %q, want consent page", loc)
	}
	if !strings.HasSuffix(loc, "#wechat_redirect") {
		t.Errorf("Location missing fragment: %q", loc)
	}

	// The gate minted a session so the grant survives the consent round trip.
	cookies := rec.Result().Cookies()
	found := false
	for _, c := range cookies {
		if c.Name == "sessionid" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("no session cookie minted: %v", cookies)
	}
}
