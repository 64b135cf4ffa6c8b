package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastPathSegment(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://geo.example/api/jurisdictions/jur1", "jur1"},
		{"http://geo.example/api/jurisdictions/jur1/", "jur1"},
		{"http://geo.example/api/jurisdictions/jur1/events/42", "42"},
		{"jur1", "jur1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lastPathSegment(tt.url), tt.url)
	}
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "http://geo.example/api/events/42",
		resolveURL("http://geo.example/api/", "events/42"))
	assert.Equal(t, "http://other.example/x",
		resolveURL("http://geo.example/api/", "http://other.example/x"))
	assert.Equal(t, "events/42", resolveURL("://bad", "events/42"))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-15T08:00:00Z", time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)},
		{"2025-01-15T08:00:00-05:00", time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC)},
		{"2025-01-15T08:00:00", time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)},
		{"2025-01-15", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseTimestamp("15/01/2025")
	assert.Error(t, err)
}
