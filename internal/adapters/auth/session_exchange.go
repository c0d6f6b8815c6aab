package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/ports"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderAccessToken carries the session token on a successful login.
	HeaderAccessToken       = "X-FM-Data-Access-Token"
	DefaultSessionsPath     = "sessions"
	maxSessionResponseBytes = 1 << 20
)

var errMissingToken = errors.New("session response carried no token")

type API struct {
	// BaseURL is the database root, for example https://fms.example.com/fmi/data/vLatest/databases/Contacts.
	BaseURL      string
	SessionsPath string
}

// SessionExchange trades basic credentials for a session token and revokes tokens on logout.
type SessionExchange struct {
	API            API
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Now            func() time.Time
}

var (
	_ ports.CredentialStore = SessionExchange{}
	_ ports.TokenRevoker    = SessionExchange{}
)

type sessionPayload struct {
	Token string `json:"token"`
}

func (a SessionExchange) Exchange(ctx context.Context, credentials domain.BasicCredentials) (domain.Token, error) {
	if err := credentials.Validate(); err != nil {
		return domain.Token{}, err
	}

	endpoint, err := buildAPIURL(a.API.BaseURL, a.sessionsPath())
	if err != nil {
		return domain.Token{}, err
	}

	requestCtx, cancel := a.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return domain.Token{}, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(credentials.Username, credentials.Password)

	raw, err := a.do(req)
	if err != nil {
		return domain.Token{}, fmt.Errorf("request session: %w", err)
	}

	result, err := domain.ClassifyResponse(raw)
	if err != nil {
		return domain.Token{}, err
	}

	token := raw.Header[HeaderAccessToken]
	if token == "" {
		var payload sessionPayload
		if err := json.Unmarshal(result.Response, &payload); err == nil {
			token = payload.Token
		}
	}
	if token == "" {
		return domain.Token{}, domain.ServiceUnavailable(errMissingToken)
	}

	return domain.Token{Value: token, Issued: a.issuedAt(token)}, nil
}

// Revoke ends the server-side session behind token.
func (a SessionExchange) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return errMissingToken
	}

	endpoint, err := buildAPIURL(a.API.BaseURL, a.sessionsPath()+"/"+url.PathEscape(token))
	if err != nil {
		return err
	}

	requestCtx, cancel := a.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create logout request: %w", err)
	}

	raw, err := a.do(req)
	if err != nil {
		return fmt.Errorf("request logout: %w", err)
	}

	_, err = domain.ClassifyResponse(raw)
	return err
}

func (a SessionExchange) do(req *http.Request) (domain.RawResponse, error) {
	resp, err := a.httpClient().Do(req)
	if err != nil {
		return domain.RawResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionResponseBytes))
	if err != nil {
		return domain.RawResponse{}, fmt.Errorf("read response body: %w", err)
	}

	return domain.RawResponse{
		StatusCode: resp.StatusCode,
		Header:     map[string]string{HeaderAccessToken: resp.Header.Get(HeaderAccessToken)},
		Body:       body,
	}, nil
}

// issuedAt reads the iat claim when the token is a JWT. The signature is not checked;
// the claim only anchors the local validity window.
func (a SessionExchange) issuedAt(token string) time.Time {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return now()
	}

	issued, err := claims.GetIssuedAt()
	if err != nil || issued == nil {
		return now()
	}

	return issued.Time
}

func (a SessionExchange) sessionsPath() string {
	if a.API.SessionsPath == "" {
		return DefaultSessionsPath
	}
	return a.API.SessionsPath
}

func (a SessionExchange) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

func (a SessionExchange) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := a.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

// buildAPIURL resolves path below baseURL, treating baseURL as a directory.
func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
		parsed.RawPath = ""
	}

	endpoint, err := parsed.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
