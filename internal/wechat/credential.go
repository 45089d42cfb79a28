package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JesseYan/gm-share-tool/internal/cache"
)

// Store keys for the shared credentials. The expiry rides in a sibling key so
// a stale value is still observable for diagnostics.
const (
	tokenKey        = "wx:access_token"
	tokenExpiryKey  = "wx:access_token:expired_time"
	ticketKey       = "wx:jsapi_ticket"
	ticketExpiryKey = "wx:jsapi_ticket:expired_time"
)

// expiryLayout is the stored timestamp format (UTC, microsecond precision).
const expiryLayout = "2006-01-02T15:04:05.000000Z"

// expiryMargin is subtracted from the upstream-reported TTL so a cached value
// is never served past the point the provider would reject it.
const expiryMargin = 60 * time.Second

// CredentialCache manages the process-wide app access token and jsapi ticket.
// Values live in the shared store; a read past the recorded expiry triggers a
// synchronous refresh. Concurrent refreshes of the same key are collapsed
// into a single upstream call.
type CredentialCache struct {
	store  cache.Store
	client *Client
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewCredentialCache wires the cache to its store and upstream client.
func NewCredentialCache(store cache.Store, client *Client, logger *slog.Logger) *CredentialCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialCache{
		store:  store,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// GetToken returns a currently valid app access token, refreshing it from
// upstream when the cached value is absent or expired.
func (c *CredentialCache) GetToken(ctx context.Context) (string, error) {
	return c.get(ctx, tokenKey, tokenExpiryKey, func(ctx context.Context) (Credential, error) {
		return c.client.FetchToken(ctx)
	})
}

// GetTicket returns a currently valid jsapi ticket. The fetch requires a
// valid access token, which the caller obtains via GetToken.
func (c *CredentialCache) GetTicket(ctx context.Context, token string) (string, error) {
	return c.get(ctx, ticketKey, ticketExpiryKey, func(ctx context.Context) (Credential, error) {
		return c.client.FetchTicket(ctx, token)
	})
}

// Sign produces the JS-SDK signature for a page URL using a fresh nonce and
// the current time. The returned structure carries the app ID and never the
// ticket.
func (c *CredentialCache) Sign(ticket, pageURL string) Signature {
	sig := signJSAPI(ticket, pageURL, newNonce(), c.now().Unix())
	sig.AppID = c.client.AppID()
	return sig
}

// SignPage is the full decoration path: token, ticket, signature. Any
// credential failure degrades to the empty signature so page rendering never
// fails on upstream trouble.
func (c *CredentialCache) SignPage(ctx context.Context, pageURL string) Signature {
	token, err := c.GetToken(ctx)
	if err != nil {
		c.logger.Error("fetch wechat access token", slog.String("error", err.Error()))
		return EmptySignature()
	}
	ticket, err := c.GetTicket(ctx, token)
	if err != nil {
		c.logger.Error("fetch wechat jsapi ticket", slog.String("error", err.Error()))
		return EmptySignature()
	}
	return c.Sign(ticket, pageURL)
}

// get implements the shared read-through policy for one credential key pair.
func (c *CredentialCache) get(ctx context.Context, key, expiryKey string, fetch func(context.Context) (Credential, error)) (string, error) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		expiry, _, err := c.store.Get(ctx, expiryKey)
		if err != nil {
			return "", err
		}
		if expiresAt, err := time.Parse(expiryLayout, expiry); err == nil && c.now().UTC().Before(expiresAt) {
			return val, nil
		}
	}
	return c.refresh(ctx, key, expiryKey, fetch)
}

// refresh fetches a new credential and persists it with its computed expiry.
// Callers racing on the same key share one upstream call.
func (c *CredentialCache) refresh(ctx context.Context, key, expiryKey string, fetch func(context.Context) (Credential, error)) (string, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		cred, err := fetch(ctx)
		if err != nil {
			return "", fmt.Errorf("refresh %s: %w", key, err)
		}

		expiresAt := c.now().UTC().Add(time.Duration(cred.TTLSecond)*time.Second - expiryMargin)
		if err := c.store.Set(ctx, key, cred.Value); err != nil {
			return "", err
		}
		if err := c.store.Set(ctx, expiryKey, expiresAt.Format(expiryLayout)); err != nil {
			return "", err
		}

		c.logger.Info("wechat credential refreshed",
			slog.String("key", key),
			slog.Time("expires_at", expiresAt))
		return cred.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
