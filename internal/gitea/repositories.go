package gitea

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"giteakit/client"
)

// ListUserOrganizations lists the orgs of username, or of the
// authenticated user when username is empty.
func (a *API) ListUserOrganizations(ctx context.Context, username string) ([]Organization, error) {
	endpoint := client.Endpoint("user", "orgs")
	if username != "" {
		endpoint = client.Endpoint("users", username, "orgs")
	}
	var orgs []Organization
	if err := a.getJSON(ctx, endpoint, nil, false, &orgs); err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	return orgs, nil
}

func (a *API) ListOrganizationRepositories(ctx context.Context, org string) ([]Repository, error) {
	var repos []Repository
	if err := a.getJSON(ctx, client.Endpoint("orgs", org, "repos"), nil, false, &repos); err != nil {
		return nil, fmt.Errorf("listing repositories of %s: %w", org, err)
	}
	return repos, nil
}

func (a *API) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := a.getJSON(ctx, client.Endpoint("repos", owner, repo), nil, false, &r); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, repo, err)
	}
	return &r, nil
}

type SearchQuery struct {
	Query string
	UID   int64
	Limit int
	Page  int
}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.UID > 0 {
		v.Set("uid", strconv.FormatInt(q.UID, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}

func (a *API) SearchRepositories(ctx context.Context, q SearchQuery) ([]Repository, error) {
	var result struct {
		OK   bool         `json:"ok"`
		Data []Repository `json:"data"`
	}
	if err := a.getJSON(ctx, client.Endpoint("repos", "search"), q.values(), false, &result); err != nil {
		return nil, fmt.Errorf("searching repositories: %w", err)
	}
	return result.Data, nil
}

func (a *API) GetBranch(ctx context.Context, owner, repo, branch string) (*Branch, error) {
	var b Branch
	if err := a.getJSON(ctx, client.Endpoint("repos", owner, repo, "branches", branch), nil, true, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
