package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"giteakit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSessionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     OpenSessionRequest
		invalid []string
	}{
		{
			name: "valid",
			req:  OpenSessionRequest{Owner: "unfoldingWord", Repo: "en_tn", Filepath: "tn_TIT.tsv"},
		},
		{
			name: "valid with branch and directory",
			req:  OpenSessionRequest{Owner: "o", Repo: "r", Branch: "alice-tc-create-1", Filepath: "content/01.md"},
		},
		{
			name:    "missing everything",
			req:     OpenSessionRequest{},
			invalid: []string{"owner", "repo", "filepath"},
		},
		{
			name:    "escaping filepath",
			req:     OpenSessionRequest{Owner: "o", Repo: "r", Filepath: "../secrets"},
			invalid: []string{"filepath"},
		},
		{
			name:    "absolute filepath",
			req:     OpenSessionRequest{Owner: "o", Repo: "r", Filepath: "/etc/passwd"},
			invalid: []string{"filepath"},
		},
		{
			name:    "bad branch",
			req:     OpenSessionRequest{Owner: "o", Repo: "r", Branch: "feature..x", Filepath: "a.md"},
			invalid: []string{"branch"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if len(tt.invalid) == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *errors.Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, errors.ErrorTypeValidation, verr.Type)
			problems := verr.Details.(map[string]string)
			for _, field := range tt.invalid {
				assert.Contains(t, problems, field)
			}
			assert.Len(t, problems, len(tt.invalid))
		})
	}
}

func TestDecode(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"content":""}`))
	var body ContentRequest
	require.NoError(t, Decode(req, &body))
	assert.Equal(t, "", *body.Content)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`))
	assert.Error(t, Decode(req, &ContentRequest{}))

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`not json`))
	assert.Error(t, Decode(req, &ContentRequest{}))
}

func TestValidBranch(t *testing.T) {
	assert.True(t, ValidBranch("master"))
	assert.True(t, ValidBranch("feature/x"))
	assert.False(t, ValidBranch("-x"))
	assert.False(t, ValidBranch("a b"))
	assert.False(t, ValidBranch("x.lock"))
	assert.False(t, ValidBranch(""))
}
