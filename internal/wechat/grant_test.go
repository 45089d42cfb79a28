package wechat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JesseYan/gm-share-tool/internal/cache"
	"github.com/JesseYan/gm-share-tool/internal/session"
)

func TestGrantValid(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	cases := []struct {
		name  string
		grant Grant
		want  bool
	}{
		{"fresh", Grant{BornAt: now.Unix(), ExpiresIn: 7200}, true},
		{"on the boundary", Grant{BornAt: now.Unix() - 7200, ExpiresIn: 7200}, false},
		{"long expired", Grant{BornAt: now.Unix() - 10000, ExpiresIn: 7200}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.grant.Valid(now); got != tc.want {
				t.Errorf("Valid = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGrantStamp_ExpiresEarly(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	g := Grant{ExpiresIn: 7200}.stamp(now)
	if g.BornAt != now.Unix()+grantStampSkew {
		t.Errorf("BornAt = %d, want now+%d", g.BornAt, grantStampSkew)
	}
	// Skewing the birth forward must not make a fresh grant read as invalid.
	if !g.Valid(now) {
		t.Error("freshly stamped grant reads as invalid")
	}
}

type authFixture struct {
	authorizer *Authorizer
	sessions   *session.Manager
	sess       *session.Session
	cookie     *http.Cookie
}

func newAuthFixture(t *testing.T, upstream http.Handler) *authFixture {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	client := NewClient("wx123", "secret", WithBaseURL(srv.URL))
	a := NewAuthorizer(client, ScopeUserInfo, quietLogger())
	a.now = func() time.Time { return time.Unix(1_760_000_000, 0) }

	sessions := session.NewManager(cache.NewMemoryStore(), "sessionid")
	sess, cookie := sessions.Mint()
	return &authFixture{authorizer: a, sessions: sessions, sess: sess, cookie: cookie}
}

func (f *authFixture) request(target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.AddCookie(f.cookie)
	return r
}

func TestAuthorize_ConsentWhenNoGrantNoCode(t *testing.T) {
	f := newAuthFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call: %s", r.URL.Path)
	}))

	r := f.request("https://example.com/wx/profile")
	r.Header.Set("X-Forwarded-Proto", "https")
	out, err := f.authorizer.Authorize(context.Background(), r, f.sess)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if out.OpenID != "" {
		t.Errorf("OpenID = %q, want empty", out.OpenID)
	}
	if !strings.Contains(out.ConsentURL, "redirect_uri=https%3A%2F%2Fexample.com%2Fwx%2Fprofile") {
		t.Errorf("consent URL does not point back to the page: %s", out.ConsentURL)
	}
	if !strings.HasSuffix(out.ConsentURL, "#wechat_redirect") {
		t.Errorf("consent URL missing fragment: %s", out.ConsentURL)
	}
}

func TestAuthorize_ExchangesCodeAndSavesGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","openid":"oid-1","scope":"snsapi_userinfo","expires_in":7200}`)
	})
	mux.HandleFunc("/sns/userinfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"openid":"oid-1","nickname":"测试用户"}`)
	})
	f := newAuthFixture(t, mux)

	out, err := f.authorizer.Authorize(context.Background(), f.request("https://example.com/wx/profile?code=abc"), f.sess)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if out.OpenID != "oid-1" {
		t.Errorf("OpenID = %q", out.OpenID)
	}
	if out.ConsentURL != "" {
		t.Errorf("unexpected consent redirect: %s", out.ConsentURL)
	}

	raw, ok, err := f.sess.Get(context.Background(), grantSessionKey)
	if err != nil || !ok {
		t.Fatalf("grant not persisted: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(raw, `"openid":"oid-1"`) {
		t.Errorf("persisted grant = %s", raw)
	}
}

func TestAuthorize_ExchangeFailureFallsBackToConsent(t *testing.T) {
	f := newAuthFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode":40029,"errmsg":"invalid code"}`)
	}))

	out, err := f.authorizer.Authorize(context.Background(), f.request("https://example.com/wx/profile?code=stale"), f.sess)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if out.ConsentURL == "" {
		t.Error("expected consent fallback after failed code exchange")
	}
}

func TestAuthorize_RefreshesExpiredGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/oauth2/refresh_token", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("refresh_token"); got != "rt-old" {
			t.Errorf("refresh_token = %q", got)
		}
		// The refresh response omits openid; it must be backfilled.
		fmt.Fprint(w, `{"access_token":"at-new","expires_in":7200,"scope":"snsapi_userinfo"}`)
	})
	f := newAuthFixture(t, mux)

	expired := Grant{AccessToken: "at-old", RefreshToken: "rt-old", OpenID: "oid-1", ExpiresIn: 7200, BornAt: 1}
	if err := saveTestGrant(f, expired); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	out, err := f.authorizer.Authorize(context.Background(), f.request("https://example.com/wx/profile"), f.sess)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if out.OpenID != "oid-1" {
		t.Errorf("OpenID not backfilled: %q", out.OpenID)
	}
	if out.Grant.AccessToken != "at-new" {
		t.Errorf("AccessToken = %q, want refreshed at-new", out.Grant.AccessToken)
	}
	if out.Grant.RefreshToken != "rt-old" {
		t.Errorf("RefreshToken = %q, want carried over rt-old", out.Grant.RefreshToken)
	}
}

func TestAuthorize_RefreshFailureClearsSession(t *testing.T) {
	f := newAuthFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode":42002,"errmsg":"refresh_token expired"}`)
	}))

	expired := Grant{AccessToken: "at-old", RefreshToken: "rt-dead", OpenID: "oid-1", ExpiresIn: 7200, BornAt: 1}
	if err := saveTestGrant(f, expired); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	out, err := f.authorizer.Authorize(context.Background(), f.request("https://example.com/wx/profile"), f.sess)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if out.ConsentURL == "" {
		t.Error("expected consent redirect after failed refresh")
	}
	if _, ok, _ := f.sess.Get(context.Background(), grantSessionKey); ok {
		t.Error("dead grant still in session")
	}
}

func saveTestGrant(f *authFixture, g Grant) error {
	return f.authorizer.saveGrant(context.Background(), f.sess, g)
}

func TestAbsoluteURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/p?x=1", nil)
	if got := AbsoluteURL(r); got != "http://example.com/p?x=1" {
		t.Errorf("AbsoluteURL = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := AbsoluteURL(r); got != "https://example.com/p?x=1" {
		t.Errorf("forwarded proto ignored: %q", got)
	}
}
