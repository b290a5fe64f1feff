// Package auth builds the Authorization headers sent to Gitea.
package auth

import (
	"encoding/base64"
	"strings"
)

const HeaderAuthorization = "Authorization"

// Credentials carry either an access token or a username/password pair.
// A token wins when both are set.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// AuthorizationHeaders returns the headers authenticating c: Gitea's
// "token" scheme for access tokens, basic auth for passwords. Empty
// credentials yield an empty map.
func AuthorizationHeaders(c Credentials) map[string]string {
	headers := map[string]string{}
	switch {
	case strings.TrimSpace(c.Token) != "":
		headers[HeaderAuthorization] = "token " + strings.TrimSpace(c.Token)
	case c.Username != "":
		headers[HeaderAuthorization] = BasicAuth(c.Username, c.Password)
	}
	return headers
}

func BasicAuth(username, password string) string {
	raw := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}
