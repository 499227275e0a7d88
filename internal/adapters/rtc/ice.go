// Package rtc turns ICE configuration into what browsers receive in the
// welcome message. Media never flows through the server.
package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/podnest/studio/internal/config"
	"github.com/rs/zerolog/log"
)

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
}

// ICEServers converts configured servers, falling back to the public STUN
// server when none are set. TURN entries keep their credentials.
func ICEServers(cfg []config.ICEServer) ([]webrtc.ICEServer, error) {
	if len(cfg) == 0 {
		return DefaultICEServers(), nil
	}
	out := make([]webrtc.ICEServer, 0, len(cfg))
	for i, s := range cfg {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("ice_servers[%d]: no urls", i)
		}
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate lets pion parse the server list the same way a peer would.
func Validate(servers []webrtc.ICEServer) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return fmt.Errorf("invalid ice servers: %w", err)
	}
	if err := pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "webrtc").Msg("close validation peer connection")
	}
	return nil
}
