package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIssuer(t *testing.T) {
	assert.Equal(t, "https://idp.example", NormalizeIssuer("https://idp.example/"))
	assert.Equal(t, "https://idp.example", NormalizeIssuer("https://idp.example//"))
	assert.Equal(t, "https://idp.example/realm", NormalizeIssuer("https://idp.example/realm"))
}

func TestMetadata_SupportsPKCE(t *testing.T) {
	tests := []struct {
		name    string
		methods []string
		want    bool
	}{
		{"unspecified", nil, true},
		{"S256 listed", []string{"plain", "S256"}, true},
		{"plain only", []string{"plain"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Metadata{CodeChallengeMethodsSupported: tt.methods}
			assert.Equal(t, tt.want, m.SupportsPKCE())
		})
	}
}

func TestMetadata_SupportsResponseType(t *testing.T) {
	m := &Metadata{}
	assert.True(t, m.SupportsResponseType("code"))
	assert.False(t, m.SupportsResponseType("token"))

	m.ResponseTypesSupported = []string{"code", "token"}
	assert.True(t, m.SupportsResponseType("token"))
	assert.False(t, m.SupportsResponseType("id_token"))
}

func TestMetadata_Endpoint(t *testing.T) {
	m := &Metadata{AuthorizationEndpoint: "https://a/authorize", TokenEndpoint: "https://a/token"}
	ep := m.Endpoint()
	assert.Equal(t, "https://a/authorize", ep.AuthURL)
	assert.Equal(t, "https://a/token", ep.TokenURL)
}
