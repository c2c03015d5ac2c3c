package kb

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// LinkSigner issues time-limited, HMAC-signed document links, the local
// analog of a presigned object URL.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	base   string
}

// NewLinkSigner builds a signer. base is the public URL prefix the links are
// served under.
func NewLinkSigner(secret string, ttl time.Duration, base string) *LinkSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, base: base}
}

// Sign returns a signed link for the source and its expiry instant.
func (ls *LinkSigner) Sign(sourceID string, now time.Time) (string, time.Time) {
	expiresAt := now.Add(ls.ttl)
	token := ls.token(sourceID, expiresAt.Unix())
	url := fmt.Sprintf("%s/documents/%s?expires=%d&token=%s", ls.base, sourceID, expiresAt.Unix(), token)
	return url, expiresAt
}

// Verify checks the signature and expiry of a presented link.
func (ls *LinkSigner) Verify(sourceID string, expires int64, token string, now time.Time) error {
	if now.Unix() > expires {
		return errors.New("link expired")
	}
	expected := ls.token(sourceID, expires)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return errors.New("invalid link signature")
	}
	return nil
}

// TTL reports the configured link lifetime.
func (ls *LinkSigner) TTL() time.Duration {
	return ls.ttl
}

func (ls *LinkSigner) token(sourceID string, expires int64) string {
	mac := hmac.New(sha256.New, ls.secret)
	fmt.Fprintf(mac, "%s|%d", sourceID, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
