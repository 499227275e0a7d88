package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/podnest/studio/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICEServersDefault(t *testing.T) {
	got, err := ICEServers(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultICEServers(), got)
}

func TestICEServersKeepsTURNCredentials(t *testing.T) {
	got, err := ICEServers([]config.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp"}, Username: "u", Credential: "p"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Username)
	assert.Equal(t, "u", got[1].Username)
	assert.Equal(t, "p", got[1].Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, got[1].CredentialType)
}

func TestICEServersRejectsBadEntries(t *testing.T) {
	_, err := ICEServers([]config.ICEServer{{}})
	assert.Error(t, err)

	_, err = ICEServers([]config.ICEServer{{URLs: []string{"http://not-ice"}}})
	assert.Error(t, err)
}
