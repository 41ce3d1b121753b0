package loculus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource issues bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Credential is a password grant credential of keycloak.
type Credential struct {
	TokenURL string
	ClientID string
	Username string
	Password string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// keycloak caches an access token until shortly before it expires.
type keycloak struct {
	cred Credential
	hc   *http.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// margin of token expiry.
const expiryMargin = 30 * time.Second

// Keycloak returns TokenSource with password grant.
func Keycloak(cred Credential, hc *http.Client) TokenSource {
	return &keycloak{cred: cred, hc: hc, now: time.Now}
}

func (k *keycloak) Token(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.token != "" && k.now().Before(k.expires) {
		return k.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {k.cred.ClientID},
		"username":   {k.cred.Username},
		"password":   {k.cred.Password},
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, k.cred.TokenURL, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("requesting token: status %d: %s", resp.StatusCode, body)
	}

	tr := tokenResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("requesting token: no access_token in response")
	}

	k.token = tr.AccessToken
	k.expires = k.expiry(tr)
	return k.token, nil
}

// expiry reads "exp" claim of the token without verification.
// The token is verified by the server which accepts it, not by us.
func (k *keycloak) expiry(tr tokenResponse) time.Time {
	now := k.now()
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time.Add(-expiryMargin)
	}
	if tr.ExpiresIn > 0 {
		return now.Add(time.Duration(tr.ExpiresIn)*time.Second - expiryMargin)
	}
	return now
}
