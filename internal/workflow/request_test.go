package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *TokenRequest)
		fields []string
	}{
		{name: "Valid", mutate: func(r *TokenRequest) {}},
		{name: "Missing email", mutate: func(r *TokenRequest) { r.Email = "" }, fields: []string{"email"}},
		{name: "Malformed email", mutate: func(r *TokenRequest) { r.Email = "jane@" }, fields: []string{"email"}},
		{name: "Short explanation", mutate: func(r *TokenRequest) { r.Explanation = "too short" }, fields: []string{"explanation"}},
		{name: "Long explanation", mutate: func(r *TokenRequest) { r.Explanation = strings.Repeat("a", 401) }, fields: []string{"explanation"}},
		{name: "Long name", mutate: func(r *TokenRequest) { r.Name = strings.Repeat("n", 101) }, fields: []string{"name"}},
		{name: "Everything wrong", mutate: func(r *TokenRequest) {
			r.Email = "nope"
			r.Explanation = ""
		}, fields: []string{"email", "explanation"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestTokenRequest_Normalize(t *testing.T) {
	req := TokenRequest{Name: "  Jane ", Email: " jane@example.com\n", Explanation: "\tSomething long enough to pass "}
	req.Normalize()
	assert.Equal(t, "Jane", req.Name)
	assert.Equal(t, "jane@example.com", req.Email)
	assert.Equal(t, "Something long enough to pass", req.Explanation)
}
