package gitea

import (
	"context"
	"fmt"
	"strconv"

	"giteakit/client"

	"go.uber.org/zap"
)

// Token endpoints need basic auth; reads skip the cache so a fresh token
// list is always seen.

func (a *API) ListTokens(ctx context.Context, username string) ([]AccessToken, error) {
	var tokens []AccessToken
	if err := a.getJSON(ctx, client.Endpoint("users", username, "tokens"), nil, true, &tokens); err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	return tokens, nil
}

func (a *API) CreateToken(ctx context.Context, username, name string, scopes []string) (*AccessToken, error) {
	if scopes == nil {
		scopes = []string{"write:repository", "read:user", "read:organization"}
	}
	payload := map[string]any{"name": name, "scopes": scopes}

	var token AccessToken
	if err := a.send(ctx, a.client.Post, client.Endpoint("users", username, "tokens"), payload, &token); err != nil {
		return nil, fmt.Errorf("creating token %s: %w", name, err)
	}
	return &token, nil
}

func (a *API) DeleteToken(ctx context.Context, username string, id int64) error {
	endpoint := client.Endpoint("users", username, "tokens", strconv.FormatInt(id, 10))
	if err := a.send(ctx, a.client.Delete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("deleting token %d: %w", id, err)
	}
	return nil
}

// EnsureToken replaces any token called name with a fresh one. Gitea only
// reveals a token's secret at creation, so an existing token is useless
// to a new session.
func (a *API) EnsureToken(ctx context.Context, username, name string) (*AccessToken, error) {
	tokens, err := a.ListTokens(ctx, username)
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		if t.Name != name {
			continue
		}
		if err := a.DeleteToken(ctx, username, t.ID); err != nil {
			return nil, err
		}
		a.logger.Debug("replaced token", zap.String("name", name), zap.Int64("id", t.ID))
	}
	return a.CreateToken(ctx, username, name, nil)
}
