package gitea

import (
	"context"
	"fmt"
	"net/http"

	"giteakit/client"
	apperrors "giteakit/internal/errors"

	"go.uber.org/zap"
)

// GetUser looks a user up by name. A lookup that fails for any reason
// other than the local network being down yields a nil user.
func (a *API) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := a.getJSON(ctx, client.Endpoint("users", username), nil, false, &user)
	if err != nil {
		if apperrors.Classify(err) == apperrors.KindOffline {
			return nil, apperrors.ErrNetworkDisconnected
		}
		a.logger.Debug("user lookup failed", zap.String("username", username), zap.Error(err))
		return nil, nil
	}
	return &user, nil
}

// GetUID returns the id of username, or 0 when it cannot be resolved.
// Like GetUser it fails only when the local network is down.
func (a *API) GetUID(ctx context.Context, username string) (int64, error) {
	user, err := a.GetUser(ctx, username)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, nil
	}
	return user.ID, nil
}

// CurrentUser returns the user the config authenticates as.
func (a *API) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := a.getJSON(ctx, client.Endpoint("user"), nil, true, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Authentication is the result of a successful login.
type Authentication struct {
	User   *User            `json:"user"`
	Config client.APIConfig `json:"config"`
}

// Authenticate checks username/password and trades them for an access
// token named tokenName. The returned config carries the token, not the
// password.
func (a *API) Authenticate(ctx context.Context, username, password, tokenName string) (*Authentication, error) {
	basic := a.config
	basic.Token = ""
	basic.Username = username
	basic.Password = password
	withBasic := a.WithConfig(basic)

	user, err := withBasic.CurrentUser(ctx)
	if err != nil {
		if apperrors.HasStatus(err, http.StatusUnauthorized) {
			return nil, a.loginFailure(ctx, username)
		}
		return nil, fmt.Errorf("authenticating %s: %w", username, err)
	}

	token, err := withBasic.EnsureToken(ctx, user.Name(), tokenName)
	if err != nil {
		return nil, fmt.Errorf("ensuring token: %w", err)
	}

	cfg := basic.WithToken(token.SHA1)
	a.logger.Info("authenticated", zap.String("user", user.Name()), zap.String("token", token.Name))
	return &Authentication{User: user, Config: cfg}, nil
}

func (a *API) loginFailure(ctx context.Context, username string) error {
	anonymous := a.config
	anonymous.Token = ""
	anonymous.Username = ""
	anonymous.Password = ""

	user, err := a.WithConfig(anonymous).GetUser(ctx, username)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.ErrUnknownUser
	}
	return apperrors.ErrInvalidPassword
}
