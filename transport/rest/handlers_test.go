package rest

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinLink(t *testing.T) {
	t.Run("carries the room id and the guest marker", func(t *testing.T) {
		// Given: a plain request against the public host
		req := httptest.NewRequest("GET", "http://game.example/rooms/AB2CD/qr", nil)

		// Then: the link joins as a guest on the same host
		assert.Equal(t, "http://game.example/?r=AB2CD&host=false", joinLink(req, "AB2CD"))
	})

	t.Run("honors the forwarded proto behind a proxy", func(t *testing.T) {
		req := httptest.NewRequest("GET", "http://game.example/rooms/AB2CD/qr", nil)
		req.Header.Set("X-Forwarded-Proto", "https")

		assert.Equal(t, "https://game.example/?r=AB2CD&host=false", joinLink(req, "AB2CD"))
	})
}
