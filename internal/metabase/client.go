// Package metabase pulls the raw event tables from the reporting API as CSV
// card exports. It owns authentication, session caching and retries so that
// no network concern leaks into the criteria core.
package metabase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/caseflag/caseflag/internal/config"
)

const sessionHeader = "X-Metabase-Session"

// Client is a parametrized reporting-API client: one instance serves every
// registered dataset.
type Client struct {
	http     *resty.Client
	registry Registry
	sessions *sessionCache
	cfg      *config.Config
	log      zerolog.Logger
}

// New builds a Client from configuration. The underlying HTTP client
// carries a request timeout and retries transient failures; auth failures
// are handled by the session logic, not blind retries.
func New(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	if cfg.MetabaseURL == "" {
		return nil, fmt.Errorf("metabase url not configured")
	}

	httpClient := resty.New().
		SetBaseURL(cfg.MetabaseURL+"/api").
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	return &Client{
		http:     httpClient,
		registry: DefaultRegistry,
		sessions: newSessionCache(cfg.DataDir),
		cfg:      cfg,
		log:      log,
	}, nil
}

// WithRegistry overrides the card registry. Used by tests.
func (c *Client) WithRegistry(r Registry) *Client {
	c.registry = r
	return c
}

// session returns a valid session id: the cached one when the server still
// accepts it, otherwise a fresh login.
func (c *Client) session(ctx context.Context) (string, error) {
	if cached := c.sessions.read(); cached != "" && c.sessionValid(ctx, cached) {
		return cached, nil
	}
	return c.login(ctx)
}

// sessionValid probes the current-user endpoint; a 2xx answer means the
// session is still accepted.
func (c *Client) sessionValid(ctx context.Context, sessionID string) bool {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(sessionHeader, sessionID).
		Get("/user/current")
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

type sessionResponse struct {
	ID string `json:"id"`
}

// login authenticates with the decrypted service-account credentials and
// caches the returned session id.
func (c *Client) login(ctx context.Context) (string, error) {
	username, err := decrypt(c.cfg.SecretKey, c.cfg.ServiceAccount)
	if err != nil {
		return "", fmt.Errorf("service account: %w", err)
	}
	password, err := decrypt(c.cfg.SecretKey, c.cfg.ServiceAccountPassword)
	if err != nil {
		return "", fmt.Errorf("service account password: %w", err)
	}

	var session sessionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&session).
		Post("/session")
	if err != nil {
		return "", fmt.Errorf("session request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("session request: status %d: %s", resp.StatusCode(), resp.String())
	}
	if session.ID == "" {
		return "", fmt.Errorf("session request: empty session id")
	}

	if err := c.sessions.write(session.ID); err != nil {
		return "", fmt.Errorf("cache session: %w", err)
	}
	c.log.Info().Msg("metabase session refreshed")
	return session.ID, nil
}

// DownloadCard fetches one card's rows as CSV bytes. An expired session is
// refreshed once and the download retried.
func (c *Client) DownloadCard(ctx context.Context, cardID int) ([]byte, error) {
	sessionID, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.downloadOnce(ctx, cardID, sessionID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		if sessionID, err = c.login(ctx); err != nil {
			return nil, err
		}
		if resp, err = c.downloadOnce(ctx, cardID, sessionID); err != nil {
			return nil, err
		}
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("card %d download: status %d: %s", cardID, resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}

func (c *Client) downloadOnce(ctx context.Context, cardID int, sessionID string) (*resty.Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		SetHeader(sessionHeader, sessionID).
		Post(fmt.Sprintf("/card/%d/query/csv", cardID))
	if err != nil {
		return nil, fmt.Errorf("card %d download: %w", cardID, err)
	}
	return resp, nil
}

// DownloadEntity resolves an entity through the registry and downloads it.
func (c *Client) DownloadEntity(ctx context.Context, entity string) ([]byte, error) {
	cardID, err := c.registry.CardID(entity)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := c.DownloadCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	c.log.Info().
		Str("entity", entity).
		Int("card_id", cardID).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("dataset downloaded")
	return data, nil
}
