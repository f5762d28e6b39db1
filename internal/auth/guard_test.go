package auth

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{"forwarded chain", http.Header{"X-Forwarded-For": {" 203.0.113.7 , 10.0.0.1"}}, "203.0.113.7"},
		{"real ip", http.Header{"X-Real-Ip": {"198.51.100.2"}}, "198.51.100.2"},
		{"forwarded wins", http.Header{"X-Forwarded-For": {"1.1.1.1"}, "X-Real-Ip": {"2.2.2.2"}}, "1.1.1.1"},
		{"lowercase raw key", http.Header{"x-forwarded-for": {"9.9.9.9"}}, "9.9.9.9"},
		{"empty first entry falls through", http.Header{"X-Forwarded-For": {" , 1.1.1.1"}, "X-Real-Ip": {"2.2.2.2"}}, "2.2.2.2"},
		{"none", http.Header{}, UnknownClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientIdentity(tt.header))
		})
	}
}

func TestGuardNotRequired(t *testing.T) {
	g := NewGuard(false, "", zerolog.Nop())
	assert.True(t, g.Authorize(http.Header{}))
}

func TestGuardRequiredWithoutSecretFailsClosed(t *testing.T) {
	g := NewGuard(true, "", zerolog.Nop())
	assert.False(t, g.Authorize(http.Header{}))
	assert.False(t, g.Authorize(http.Header{"X-Api-Key": {""}}))
	assert.False(t, g.Authorize(http.Header{"X-Api-Key": {"anything"}}))
}

func TestGuardRequiredWithSecret(t *testing.T) {
	g := NewGuard(true, "s3cret", zerolog.Nop())

	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{"canonical", http.Header{"X-Api-Key": {"s3cret"}}, true},
		{"lowercase raw key", http.Header{"x-api-key": {"s3cret"}}, true},
		{"mixed case raw key", http.Header{"X-API-KEY": {"s3cret"}}, true},
		{"wrong key", http.Header{"X-Api-Key": {"nope"}}, false},
		{"prefix of key", http.Header{"X-Api-Key": {"s3c"}}, false},
		{"missing", http.Header{}, false},
		{"other header", http.Header{"Authorization": {"s3cret"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Authorize(tt.header))
		})
	}
}
