// Package gitea wraps the Gitea REST endpoints the toolkit consumes.
package gitea

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"giteakit/client"
	"giteakit/internal/logging"

	"go.uber.org/zap"
)

// API binds a client to one server config.
type API struct {
	client *client.Client
	config client.APIConfig
	logger *zap.Logger
}

func New(c *client.Client, cfg client.APIConfig, logger *zap.Logger) *API {
	logger = logging.OrNop(logger)
	return &API{client: c, config: cfg, logger: logger}
}

// WithConfig returns an API sharing the client but using cfg.
func (a *API) WithConfig(cfg client.APIConfig) *API {
	return &API{client: a.client, config: cfg, logger: a.logger}
}

func (a *API) Config() client.APIConfig {
	return a.config
}

func (a *API) Client() *client.Client {
	return a.client
}

func (a *API) getJSON(ctx context.Context, endpoint string, params url.Values, noCache bool, dest any) error {
	return a.client.GetJSON(ctx, client.GetRequest{
		URL:     endpoint,
		Params:  params,
		Config:  a.config,
		NoCache: noCache,
	}, dest)
}

func (a *API) send(ctx context.Context, call func(context.Context, client.RestRequest) ([]byte, error), endpoint string, payload, dest any) error {
	data, err := call(ctx, client.RestRequest{URL: endpoint, Payload: payload, Config: a.config})
	if err != nil {
		return err
	}
	if dest == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	return nil
}

// Version reads the server version. It goes past the cache so it doubles
// as a liveness check.
func (a *API) Version(ctx context.Context) (string, error) {
	var v ServerVersion
	if err := a.getJSON(ctx, client.Endpoint("version"), nil, true, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}
