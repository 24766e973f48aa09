package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageType(t *testing.T) {
	tests := []struct {
		typ       MessageType
		handshake bool
		relayed   bool
	}{
		{TypeRegisterHost, true, false},
		{TypeRequestPairCode, true, false},
		{TypeExchangePairCode, true, false},
		{TypeValidateSession, true, false},
		{TypeHostRegistered, false, false},
		{TypeRemoteJoined, false, false},
		{"control.toggle_playback", false, true},
		{"control.state_update", false, true},
		{"media.list", false, true},
		{"script.injection.failed", false, true},
		{"control.", false, false},
		{"unknown", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.handshake, tt.typ.IsHandshake())
			assert.Equal(t, tt.relayed, tt.typ.IsRelayed())
		})
	}
}

func TestConnectionState(t *testing.T) {
	t.Run("unauthenticated has no identity", func(t *testing.T) {
		s := Unauthenticated()
		assert.False(t, s.Authenticated())
		assert.Empty(t, s.SessionID())
		assert.Empty(t, s.RemoteID())
	})

	t.Run("host carries session only", func(t *testing.T) {
		s := AsHost("S1")
		assert.True(t, s.Authenticated())
		assert.Equal(t, "S1", s.SessionID())
		assert.Empty(t, s.RemoteID())
		assert.Nil(t, s.Remote)
	})

	t.Run("remote carries session and remote id", func(t *testing.T) {
		s := AsRemote("S1", "R1", "dev-1")
		assert.True(t, s.Authenticated())
		assert.Equal(t, "S1", s.SessionID())
		assert.Equal(t, "R1", s.RemoteID())
		assert.Nil(t, s.Host)
	})
}

func TestExpiry(t *testing.T) {
	now := time.Now()

	code := PairCode{Code: "AB23CD", SessionID: "S1", ExpiresAt: now.Add(time.Minute)}
	assert.False(t, code.Expired(now))
	assert.True(t, code.Expired(now.Add(61*time.Second)))

	token := TrustToken{Token: "T1", SessionID: "S1", ExpiresAt: now.Add(time.Hour)}
	assert.False(t, token.Expired(now.Add(59*time.Minute)))
	assert.True(t, token.Expired(now.Add(2*time.Hour)))
}
