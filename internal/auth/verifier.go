package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned for any token that fails parsing, signature or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the caller identity carried by an access token.
type Claims struct {
	UserID string
	Roles  []string
}

// Verifier checks HS256 access tokens issued by the platform's identity service.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify parses token and returns its claims. The subject becomes the user id and the
// optional "roles" claim the granted roles.
func (v Verifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(v.Secret) == 0 {
		return Claims{}, ErrInvalidToken
	}
	alg, err := tokenAlgorithm(token)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if alg != jwa.HS256 {
		return Claims{}, fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, alg)
	}
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.Secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	parsed, err := jwt.ParseString(token, options...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(parsed.Subject()) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Claims{UserID: parsed.Subject(), Roles: rolesOf(parsed)}, nil
}

// Issue signs a token for userID. Used by tests and local tooling.
func (v Verifier) Issue(userID string, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	b := jwt.NewBuilder().Subject(userID).IssuedAt(now).Expiration(now.Add(ttl))
	if v.Issuer != "" {
		b = b.Issuer(v.Issuer)
	}
	if v.Audience != "" {
		b = b.Audience([]string{v.Audience})
	}
	if len(roles) > 0 {
		b = b.Claim("roles", roles)
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", errors.New("expected exactly one signature")
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil || headers.Algorithm() == "" {
		return "", errors.New("missing algorithm")
	}
	if headers.Algorithm() == jwa.NoSignature {
		return "", errors.New("none algorithm")
	}
	return headers.Algorithm(), nil
}

func rolesOf(tok jwt.Token) []string {
	raw, ok := tok.Get("roles")
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(v)
	}
	return nil
}
