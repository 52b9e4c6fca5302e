package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidMediaTransition(t *testing.T) {
	tests := []struct {
		current, next MediaStatus
		want          bool
	}{
		{MediaPending, MediaUploading, true},
		{MediaUploading, MediaUploaded, true},
		{MediaUploading, MediaFailed, true},
		{MediaFailed, MediaPending, true},
		{MediaUploading, MediaPending, true},
		{MediaPending, MediaUploaded, false},
		{MediaUploaded, MediaPending, false},
		{MediaFailed, MediaUploaded, false},
		{MediaUploading, MediaUploading, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidMediaTransition(tt.current, tt.next), "%s -> %s", tt.current, tt.next)
	}
}

func TestHost(t *testing.T) {
	assert.False(t, Host{}.IsSet())
	assert.False(t, Host{IP: "10.0.0.2"}.IsSet())

	h := Host{IP: "10.0.0.2", Port: 5600}
	assert.True(t, h.IsSet())
	assert.Equal(t, "10.0.0.2:5600", h.String())
	assert.Equal(t, "[::1]:5600", Host{IP: "::1", Port: 5600}.String())
}

func TestResolutionString(t *testing.T) {
	assert.Equal(t, "1280x720", Resolution{Width: 1280, Height: 720}.String())
}
