package gitea

import (
	"context"
	"fmt"
	"net/url"

	"giteakit/client"
)

// FetchCatalogContent reads filepath as published at tag. Tagged content
// does not change, so the read may be served from the response cache.
func (a *API) FetchCatalogContent(ctx context.Context, org, repo, tag, filepath string) (string, error) {
	params := url.Values{}
	params.Set("ref", tag)

	data, err := a.client.Get(ctx, client.GetRequest{
		URL:    client.Endpoint("repos", org, repo, "raw", filepath),
		Params: params,
		Config: a.config,
	})
	if err != nil {
		return "", fmt.Errorf("fetching %s@%s from catalog: %w", filepath, tag, err)
	}
	return string(data), nil
}
