package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidSession is returned when a session token fails verification.
var ErrInvalidSession = errors.New("auth: invalid session token")

// Session describes a verified embedded-app session.
type Session struct {
	Shop   string
	UserID string
}

// Verifier verifies Shopify session tokens issued to embedded apps. Tokens are
// HS256 JWTs signed with the app's API secret; the audience claim carries the
// app's API key and the dest claim carries the shop domain.
type Verifier struct {
	APIKey    string
	APISecret string
	ClockSkew time.Duration
	Now       func() time.Time
}

// Verify parses and validates a session token, returning the shop domain and
// the staff user identifier embedded in the token.
func (v Verifier) Verify(raw string) (Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, ErrInvalidSession
	}
	if v.APISecret == "" {
		return Session{}, errors.New("auth: api secret not configured")
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	algorithm := tokenAlgorithm(msg)

	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, []byte(v.APISecret)), jwt.WithValidate(false))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	validator := TokenValidator{
		Audience:  v.APIKey,
		ClockSkew: v.ClockSkew,
		Algorithm: jwa.HS256,
	}
	if err := validator.Validate(tok, algorithm, now); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	dest, _ := tok.Get("dest")
	shop, err := shopFromDest(fmt.Sprint(dest))
	if err != nil {
		return Session{}, err
	}

	session := Session{Shop: shop}
	if sub := tok.Subject(); sub != "" {
		session.UserID = sub
	}
	return session, nil
}

func tokenAlgorithm(msg *jws.Message) jwa.SignatureAlgorithm {
	for _, sig := range msg.Signatures() {
		if hdr := sig.ProtectedHeaders(); hdr != nil {
			return hdr.Algorithm()
		}
	}
	return ""
}

func shopFromDest(dest string) (string, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" || dest == "<nil>" {
		return "", fmt.Errorf("%w: missing dest claim", ErrInvalidSession)
	}
	parsed, err := url.Parse(dest)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: malformed dest claim", ErrInvalidSession)
	}
	host := strings.ToLower(parsed.Host)
	if !strings.HasSuffix(host, ".myshopify.com") {
		return "", fmt.Errorf("%w: unexpected shop domain", ErrInvalidSession)
	}
	return host, nil
}
