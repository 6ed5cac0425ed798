// Package identity verifies bearer tokens against the external identity
// service. Verification always happens upstream; the local checks only turn
// away tokens that could never be valid.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"

	"pulsemetrics/internal/apperr"
)

// DefaultTimeout bounds a verification call when none is configured.
const DefaultTimeout = 5 * time.Second

// Identity is the caller as reported by the identity service.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Verifier resolves a bearer token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Client calls GET {baseURL}/auth/me with the caller's bearer token.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
	now     func() time.Time
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "pulsemetrics",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		now: time.Now,
	}
}

// Verify fails closed: a malformed or expired token, a timeout, a non-200
// answer or an unreadable body all yield an authentication error.
func (c *Client) Verify(ctx context.Context, token string) (Identity, error) {
	if err := c.precheck(token); err != nil {
		return Identity{}, err
	}

	deadline := c.now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/auth/me")
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return Identity{}, apperr.Unauthenticated("identity verification timed out", err)
		}
		return Identity{}, apperr.Unauthenticated("identity service unreachable", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return Identity{}, apperr.Unauthenticated(fmt.Sprintf("identity service answered %d", code), nil)
	}

	id, err := decodeIdentity(resp.Body())
	if err != nil {
		return Identity{}, apperr.Unauthenticated("unreadable identity response", err)
	}
	return id, nil
}

// precheck rejects tokens that are not a well-formed JWT or whose exp claim
// has already passed. The signature is not checked here.
func (c *Client) precheck(token string) error {
	if token == "" {
		return apperr.Unauthenticated("missing bearer token", nil)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return apperr.Unauthenticated("malformed bearer token", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return apperr.Unauthenticated("malformed bearer token", err)
	}
	if exp != nil && !exp.After(c.now()) {
		return apperr.Unauthenticated("bearer token expired", nil)
	}
	return nil
}

type principal struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

func (p *principal) identity() (Identity, bool) {
	if p == nil {
		return Identity{}, false
	}
	id := p.ID
	if id == "" {
		id = p.MongoID
	}
	if id == "" {
		return Identity{}, false
	}
	return Identity{ID: id, Email: p.Email, Role: p.Role}, true
}

// decodeIdentity accepts the user at the top level, under "user", under
// "data", or under "data.user".
func decodeIdentity(body []byte) (Identity, error) {
	var doc struct {
		principal
		User *principal `json:"user"`
		Data *struct {
			principal
			User *principal `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Identity{}, err
	}

	candidates := []*principal{&doc.principal, doc.User}
	if doc.Data != nil {
		candidates = append(candidates, &doc.Data.principal, doc.Data.User)
	}
	for _, p := range candidates {
		if id, ok := p.identity(); ok {
			return id, nil
		}
	}
	return Identity{}, errors.New("no user id in response")
}
