package wechat

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Signature is the JS-SDK config handed to the page. The jsapi ticket that
// seeds the signature is deliberately absent.
type Signature struct {
	AppID     string `json:"appId"`
	NonceStr  string `json:"nonceStr"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
	Signature string `json:"signature"`
}

// EmptySignature is the degraded structure served when credentials cannot be
// obtained; the page still renders, just without a working JS-SDK.
func EmptySignature() Signature {
	return Signature{}
}

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newNonce returns a 15-character alphanumeric nonce.
func newNonce() string {
	buf := make([]byte, 15)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random nonce: %v", err))
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf)
}

// signJSAPI computes the legacy JS-SDK signature: parameters keyed by their
// lowercased names, sorted lexicographically, joined as k=v with '&', hashed
// with SHA-1. The hash is mandated by the provider's protocol and must stay
// SHA-1 for interoperability.
func signJSAPI(ticket, pageURL, nonce string, timestamp int64) Signature {
	params := map[string]string{
		"jsapi_ticket": ticket,
		"noncestr":     nonce,
		"timestamp":    fmt.Sprintf("%d", timestamp),
		"url":          pageURL,
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&")))

	return Signature{
		NonceStr:  nonce,
		Timestamp: timestamp,
		URL:       pageURL,
		Signature: hex.EncodeToString(sum[:]),
	}
}
