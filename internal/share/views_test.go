package share

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JesseYan/gm-share-tool/internal/cache"
	"github.com/JesseYan/gm-share-tool/internal/pipeline"
	"github.com/JesseYan/gm-share-tool/internal/rpc"
	"github.com/JesseYan/gm-share-tool/internal/session"
	"github.com/JesseYan/gm-share-tool/internal/wechat"
)

type fixture struct {
	router *chi.Mux

	mu       sync.Mutex
	rpcCalls map[string]int
}

func (f *fixture) calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rpcCalls[path]
}

// newFixture stands up the full route table against fake RPC and WeChat
// upstreams.
func newFixture(t *testing.T, rpcHandler func(w http.ResponseWriter, r *http.Request)) *fixture {
	t.Helper()

	f := &fixture{rpcCalls: map[string]int{}}

	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.rpcCalls[r.URL.Path]++
		f.mu.Unlock()
		rpcHandler(w, r)
	}))
	t.Cleanup(rpcSrv.Close)

	wxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sns/oauth2/access_token":
			fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","openid":"oid-1","scope":"snsapi_userinfo","expires_in":7200}`)
		case "/sns/userinfo":
			fmt.Fprint(w, `{"openid":"oid-1","nickname":"测试"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(wxSrv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewMemoryStore()
	sessions := session.NewManager(store, "sessionid")
	client := wechat.NewClient("wx123", "secret", wechat.WithBaseURL(wxSrv.URL))
	engine := pipeline.NewEngine(logger, "/login", false)

	f.router = chi.NewRouter()
	err := Register(f.router, Deps{
		Engine:        engine,
		Sessions:      sessions,
		RPC:           rpc.NewClient(rpcSrv.URL),
		Client:        client,
		Authorizer:    wechat.NewAuthorizer(client, wechat.ScopeUserInfo, logger),
		Pages:         cache.NewPageCache(store),
		URLBase:       "https://m.example.com",
		ChannelCookie: "channel",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return f
}

func shareDetailHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/share/detail":
		fmt.Fprint(w, `{"error":0,"message":"","data":{"title":"双眼皮日记","content":"正文","author":"某人"}}`)
	case "/api/user_info":
		fmt.Fprint(w, `{"error":0,"message":"","data":{"user_id":7,"nickname":"小美"}}`)
	default:
		http.NotFound(w, r)
	}
}

func TestSharePage(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/42", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "双眼皮日记") {
		t.Errorf("title missing from page: %s", body)
	}
	if !strings.Contains(body, `data-url-base="https://m.example.com"`) {
		t.Errorf("url base missing from page: %s", body)
	}
	if !strings.Contains(body, "下载APP") {
		t.Errorf("download link missing: %s", body)
	}
}

func TestSharePage_ServedFromCacheOnRepeat(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/42", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: code = %d", i, rec.Code)
		}
	}
	if got := f.calls("/api/share/detail"); got != 1 {
		t.Errorf("rpc hit %d times, want 1 (second request cached)", got)
	}
}

func TestSharePage_PostNotAllowed(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/share/42", nil))

	// chi itself rejects the verb; the route only registers GET.
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", rec.Code)
	}
	if got := f.calls("/api/share/detail"); got != 0 {
		t.Errorf("rpc hit %d times on a rejected verb", got)
	}
}

func TestDownload_RedirectsByChannelAndPlatform(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	r := httptest.NewRequest(http.MethodGet, "/download", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 6.0)")
	r.AddCookie(&http.Cookie{Name: "channel", Value: "weixin"})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)

	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "http://dl.gmei.com/current/weixingg/gengmei_weixingg.apk" {
		t.Errorf("Location = %q", loc)
	}
}

func TestUserInfo_AnonymousBrowserRedirects(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user_info", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), "/login?next_url=") {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	if got := f.calls("/api/user_info"); got != 0 {
		t.Errorf("rpc hit %d times behind the auth gate", got)
	}
}

func TestUserInfo_AnonymousXHRGetsBody(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/user_info", nil)
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != float64(1001) || body["message"] != "需要登录" {
		t.Errorf("body = %v", body)
	}
}

func TestUserInfo_LoggedIn(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/user_info", nil)
	r.AddCookie(&http.Cookie{Name: "sessionid", Value: "sess-1"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["user_id"] != float64(7) || body["nickname"] != "小美" {
		t.Errorf("body = %v", body)
	}
}

func TestWxAuth_RelaysCode(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/wx/auth?code=abc&redirect_url=https://app.example.com/cb", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://app.example.com/cb?") {
		t.Fatalf("Location = %q", loc)
	}
	for _, want := range []string{"openid=oid-1", "access_token=at", "from=weixin"} {
		if !strings.Contains(loc, want) {
			t.Errorf("Location missing %s: %q", want, loc)
		}
	}
}

func TestWxAuth_WithoutCodeGoesToConsent(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/wx/auth", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, "open.weixin.qq.com") || !strings.HasSuffix(loc, "#wechat_redirect") {
		t.Errorf("Location = %q, want consent page", loc)
	}
}

func TestSharePage_LoginRequiredFromFetch(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":401,"message":"","data":null}`)
	})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/42", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), "/login?next_url=") {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
}

func TestSharePage_RendersWhenCredentialFetchTimesOut(t *testing.T) {
	rpcSrv := httptest.NewServer(http.HandlerFunc(shareDetailHandler))
	t.Cleanup(rpcSrv.Close)

	wxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"late","expires_in":7200}`)
	}))
	t.Cleanup(wxSrv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewMemoryStore()
	client := wechat.NewClient("wx123", "secret",
		wechat.WithBaseURL(wxSrv.URL),
		wechat.WithHTTPClient(&http.Client{Timeout: 10 * time.Millisecond}))

	router := chi.NewRouter()
	err := Register(router, Deps{
		Engine:        pipeline.NewEngine(logger, "/login", false),
		Sessions:      session.NewManager(store, "sessionid"),
		RPC:           rpc.NewClient(rpcSrv.URL),
		Client:        client,
		Credentials:   wechat.NewCredentialCache(store, client, logger),
		Authorizer:    wechat.NewAuthorizer(client, wechat.ScopeUserInfo, logger),
		Pages:         cache.NewPageCache(store),
		URLBase:       "https://m.example.com",
		ChannelCookie: "channel",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/42", nil))

	// The credential failure degrades to the empty signature; the page itself
	// still renders.
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "双眼皮日记") {
		t.Errorf("content missing: %s", rec.Body.String())
	}
}

func TestWxProfile_Handshake(t *testing.T) {
	f := newFixture(t, shareDetailHandler)

	// First visit: no grant, no code. The gate mints a session and redirects
	// to consent.
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/wx/profile", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d", rec.Code)
	}
	var sid *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sessionid" {
			sid = c
		}
	}
	if sid == nil {
		t.Fatal("no session cookie minted on first visit")
	}

	// Back from consent with a code: the grant is exchanged and the profile
	// rendered.
	r := httptest.NewRequest(http.MethodGet, "http://example.com/wx/profile?code=abc", nil)
	r.AddCookie(sid)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["openid"] != "oid-1" {
		t.Errorf("body = %v", body)
	}
}
