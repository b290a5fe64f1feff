package client

import (
	"fmt"
	"net/url"
	"strings"

	"giteakit/internal/auth"
)

// APIPath is the REST prefix of every Gitea endpoint.
const APIPath = "api/v1"

// APIConfig describes how to reach and authenticate against a server.
// Values are copied per request and never mutated by the client.
type APIConfig struct {
	Server   string            `json:"server"`
	Token    string            `json:"token,omitempty"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"-"`
	Headers  map[string]string `json:"headers,omitempty"`
	// NoCache forces every read made with this config past the cache.
	NoCache bool `json:"no_cache,omitempty"`
	// BaseURL is what relative request URLs resolve against. ExtendConfig
	// sets it to Server.
	BaseURL string `json:"-"`
}

// ExtendConfig returns cfg with its static headers merged with the
// authorization headers derived from its credentials, and BaseURL set
// to Server. Authorization headers win over static ones.
func ExtendConfig(cfg APIConfig) APIConfig {
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	for k, v := range auth.AuthorizationHeaders(auth.Credentials{
		Token:    cfg.Token,
		Username: cfg.Username,
		Password: cfg.Password,
	}) {
		headers[k] = v
	}

	out := cfg
	out.Headers = headers
	out.BaseURL = strings.TrimRight(cfg.Server, "/")
	return out
}

// WithToken returns a copy of cfg authenticating with token instead of
// a password.
func (cfg APIConfig) WithToken(token string) APIConfig {
	out := cfg
	out.Token = token
	out.Password = ""
	return out
}

// Endpoint joins APIPath and the escaped segments into a relative URL.
func Endpoint(segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, APIPath)
	for _, s := range segments {
		for _, p := range strings.Split(strings.Trim(s, "/"), "/") {
			if p == "" {
				continue
			}
			parts = append(parts, url.PathEscape(p))
		}
	}
	return strings.Join(parts, "/")
}

func resolveURL(baseURL, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if baseURL == "" {
		return "", fmt.Errorf("relative url %q without a server", rawURL)
	}
	return baseURL + "/" + strings.TrimLeft(rawURL, "/"), nil
}

// serverOf guesses the server root of an absolute request URL, used when
// a probe is needed but the config named no server.
func serverOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
