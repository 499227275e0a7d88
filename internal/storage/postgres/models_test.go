package postgres

import (
	"testing"
	"time"

	"github.com/podnest/studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRowKeepsGuestOrder(t *testing.T) {
	sess := &domain.ScheduledSession{
		ID:            "s1",
		StudioID:      "studio",
		HostID:        "host-1",
		Title:         "Pilot",
		StartTime:     time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
		RecordingType: domain.RecordingVideo,
		Status:        domain.StatusUpcoming,
		Flags:         domain.SessionFlags{WaitingRoomEnabled: true, AITranscriptionEnabled: true},
	}
	require.NoError(t, sess.AddGuest(domain.SessionGuest{Email: "Zed@x.com", Capabilities: domain.Capabilities{Mic: true}}))
	require.NoError(t, sess.AddGuest(domain.SessionGuest{Email: "amy@x.com", Role: domain.RoleCoHost}))

	row := sessionToRow(sess)
	require.Len(t, row.Guests, 2)
	assert.Equal(t, 0, row.Guests[0].Position)
	assert.Equal(t, "zed@x.com", row.Guests[0].Email)
	assert.Equal(t, "s1", row.Guests[1].SessionID)

	back := rowToSession(row)
	assert.Equal(t, sess, back)
}

func TestStudioRowRoundTrip(t *testing.T) {
	st, err := domain.NewStudio("Friday Show", "host-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, st, rowToStudio(studioToRow(st)))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_init.up.sql")
	assert.Contains(t, names, "0001_init.down.sql")
}
