package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizationHeaders(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  map[string]string
	}{
		{
			name:  "token",
			creds: Credentials{Token: "abc123"},
			want:  map[string]string{"Authorization": "token abc123"},
		},
		{
			name:  "token wins over password",
			creds: Credentials{Token: "abc123", Username: "u", Password: "p"},
			want:  map[string]string{"Authorization": "token abc123"},
		},
		{
			name:  "basic",
			creds: Credentials{Username: "user", Password: "pass"},
			want:  map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
		},
		{
			name:  "none",
			creds: Credentials{},
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AuthorizationHeaders(tt.creds))
		})
	}
}
