package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
		recoverable bool
	}{
		{
			name:        "server unreachable",
			err:         errors.New("ERR_SERVER_UNREACHABLE"),
			wantMessage: DefaultMessages.ServerError,
			recoverable: false,
		},
		{
			name:        "network disconnected",
			err:         errors.New("ERR_NETWORK_DISCONNECTED"),
			wantMessage: DefaultMessages.NetworkError,
			recoverable: false,
		},
		{
			name:        "network error",
			err:         errors.New("Network Error"),
			wantMessage: DefaultMessages.NetworkError,
			recoverable: false,
		},
		{
			name:        "wrapped sentinel",
			err:         fmt.Errorf("loading file: %w", ErrServerUnreachable),
			wantMessage: DefaultMessages.ServerError,
			recoverable: false,
		},
		{
			name:        "anything else",
			err:         errors.New("boom"),
			wantMessage: DefaultMessages.GenericError,
			recoverable: true,
		},
		{
			name:        "upstream status",
			err:         &StatusError{Method: http.MethodGet, URL: "/x", StatusCode: 500},
			wantMessage: DefaultMessages.GenericError,
			recoverable: true,
		},
		{
			name:        "nil",
			err:         nil,
			wantMessage: DefaultMessages.GenericError,
			recoverable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseError(tt.err, DefaultMessages)
			assert.Equal(t, tt.wantMessage, got.ErrorMessage)
			assert.Equal(t, tt.recoverable, got.IsRecoverable)
		})
	}
}

func TestParseError_CustomMessages(t *testing.T) {
	messages := Messages{ServerError: "Serveur indisponible."}

	got := ParseError(ErrServerUnreachable, messages)
	assert.Equal(t, "Serveur indisponible.", got.ErrorMessage)

	// unset strings fall back to the defaults
	got = ParseError(errors.New("boom"), messages)
	assert.Equal(t, DefaultMessages.GenericError, got.ErrorMessage)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindUnreachable, Classify(ErrServerUnreachable))
	assert.Equal(t, KindOffline, Classify(ErrNetworkDisconnected))
	assert.Equal(t, KindOffline, Classify(ErrNetwork))
	assert.Equal(t, KindGeneric, Classify(errors.New("nope")))
	assert.Equal(t, "unreachable", KindUnreachable.String())
}

func TestUpstream(t *testing.T) {
	err := Upstream(&StatusError{Method: "GET", URL: "/user", StatusCode: http.StatusUnauthorized}, DefaultMessages)
	assert.Equal(t, http.StatusUnauthorized, err.Code)
	assert.Equal(t, ErrorTypeUpstream, err.Type)

	err = Upstream(ErrServerUnreachable, DefaultMessages)
	assert.Equal(t, http.StatusBadGateway, err.Code)
	assert.Equal(t, DefaultMessages.ServerError, err.Message)
	assert.True(t, IsNotFound(&StatusError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsNotFound(err))
}

func TestParseLoginError(t *testing.T) {
	got := ParseLoginError(fmt.Errorf("login: %w", ErrUnknownUser), DefaultMessages)
	assert.Equal(t, Friendly{ErrorMessage: DefaultMessages.UsernameError, IsRecoverable: true}, got)

	got = ParseLoginError(ErrInvalidPassword, DefaultMessages)
	assert.Equal(t, DefaultMessages.PasswordError, got.ErrorMessage)

	got = ParseLoginError(ErrNetworkDisconnected, DefaultMessages)
	assert.Equal(t, Friendly{ErrorMessage: DefaultMessages.NetworkError, IsRecoverable: false}, got)
}
