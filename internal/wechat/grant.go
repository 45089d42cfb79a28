package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/JesseYan/gm-share-tool/internal/session"
)

// grantSessionKey is where the per-user grant lives in session storage.
const grantSessionKey = "wxsid"

// grantStampSkew is added to the birth timestamp so the grant reads as
// expired one minute before the provider would actually reject it.
const grantStampSkew = 60

// Grant is one end-user's OAuth grant: the access/refresh token pair plus the
// locally stamped birth time used for validity checks. It is owned by a
// single session and never enters the shared credential cache.
type Grant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	BornAt       int64  `json:"born_at"`
}

// Valid reports whether the grant is still usable at the given time.
func (g Grant) Valid(now time.Time) bool {
	return g.BornAt+g.ExpiresIn > now.Unix()
}

// stamp records the grant's birth, skewed forward so it expires early.
func (g Grant) stamp(now time.Time) Grant {
	g.BornAt = now.Unix() + grantStampSkew
	return g
}

// Authorizer runs the per-user OAuth handshake: exchange an authorization
// code for a grant, keep it in the session, refresh it once when it lapses,
// and fall back to the provider's consent page when nothing else works.
type Authorizer struct {
	client *Client
	logger *slog.Logger
	scope  string
	now    func() time.Time
}

// NewAuthorizer creates an authorizer requesting the given OAuth scope.
func NewAuthorizer(client *Client, scope string, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	if scope == "" {
		scope = ScopeUserInfo
	}
	return &Authorizer{
		client: client,
		logger: logger,
		scope:  scope,
		now:    time.Now,
	}
}

// Outcome is the result of one handshake attempt. Exactly one of OpenID and
// ConsentURL is set: either the user holds a valid grant, or they must be
// sent to the provider's consent page.
type Outcome struct {
	OpenID     string
	Grant      Grant
	ConsentURL string
}

// Authorize drives the handshake for one request. It never returns an error
// for recoverable provider failures; those end in a consent redirect and are
// retried on the user's next visit.
func (a *Authorizer) Authorize(ctx context.Context, r *http.Request, sess *session.Session) (Outcome, error) {
	consent := Outcome{ConsentURL: a.client.ConsentURL(AbsoluteURL(r), a.scope, "")}

	grant, found, err := a.loadGrant(ctx, sess)
	if err != nil {
		return Outcome{}, err
	}

	switch {
	case found:
		// Session already holds a grant; validity is checked below.

	case r.URL.Query().Get("code") != "":
		code := r.URL.Query().Get("code")
		grant, err = a.client.ExchangeCode(ctx, code)
		if err != nil {
			a.logger.Error("exchange wechat code", slog.String("error", err.Error()))
			return consent, nil
		}
		grant = grant.stamp(a.now())
		if err := a.saveGrant(ctx, sess, grant); err != nil {
			return Outcome{}, err
		}

		// First visit: record the user's profile. Best effort only.
		if profile, err := a.client.FetchUserInfo(ctx, grant.AccessToken, grant.OpenID); err != nil {
			a.logger.Error("fetch wechat profile", slog.String("error", err.Error()))
		} else {
			a.logger.Info("wechat user authorized",
				slog.String("openid", profile.OpenID),
				slog.String("nickname", profile.Nickname))
		}

	default:
		return consent, nil
	}

	grant, ok := a.ensureValid(ctx, sess, grant)
	if !ok {
		if err := sess.Delete(ctx, grantSessionKey); err != nil {
			a.logger.Error("clear wechat session", slog.String("error", err.Error()))
		}
		return consent, nil
	}

	return Outcome{OpenID: grant.OpenID, Grant: grant}, nil
}

// ensureValid returns a usable grant, refreshing it at most once.
func (a *Authorizer) ensureValid(ctx context.Context, sess *session.Session, grant Grant) (Grant, bool) {
	if grant.Valid(a.now()) {
		return grant, true
	}

	refreshed, err := a.client.RefreshGrant(ctx, grant.RefreshToken)
	if err != nil {
		a.logger.Error("refresh wechat grant", slog.String("error", err.Error()))
		return Grant{}, false
	}
	// The refresh response may omit fields the original grant carried.
	if refreshed.OpenID == "" {
		refreshed.OpenID = grant.OpenID
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = grant.RefreshToken
	}
	refreshed = refreshed.stamp(a.now())

	if err := a.saveGrant(ctx, sess, refreshed); err != nil {
		a.logger.Error("save refreshed wechat grant", slog.String("error", err.Error()))
		return Grant{}, false
	}
	return refreshed, true
}

func (a *Authorizer) loadGrant(ctx context.Context, sess *session.Session) (Grant, bool, error) {
	raw, ok, err := sess.Get(ctx, grantSessionKey)
	if err != nil || !ok {
		return Grant{}, false, err
	}
	var g Grant
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Grant{}, false, fmt.Errorf("decode session grant: %w", err)
	}
	return g, true, nil
}

func (a *Authorizer) saveGrant(ctx context.Context, sess *session.Session, g Grant) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode session grant: %w", err)
	}
	return sess.Set(ctx, grantSessionKey, string(raw))
}

// AbsoluteURL reconstructs the request's externally visible URL, honoring the
// forwarded-proto header set by the fronting proxy.
func AbsoluteURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
