package janitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"snapfeed/pkg/models"
	"snapfeed/pkg/store"
)

func TestRunOncePurgesOnlyOldReadRows(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	old := time.Now().Add(-48 * time.Hour).UnixNano()
	save := func(id string, ts int64, read bool) {
		n := models.Notification{ID: id, UserID: "u1", Type: models.NotificationLike, CreatedTS: ts, IsRead: read}
		require.NoError(t, s.SaveNotification(&n))
	}
	save("old-read", old, true)
	save("old-unread", old, false)
	save("fresh-read", time.Now().UnixNano(), true)

	j, err := New(s, "0 3 * * *", 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, j.RunOnce())

	notifs, total, err := s.ListNotifications("u1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	ids := map[string]bool{}
	for _, n := range notifs {
		ids[n.ID] = true
	}
	require.True(t, ids["old-unread"])
	require.True(t, ids["fresh-read"])
	require.False(t, ids["old-read"])
}

func TestNewRejectsBadCron(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = New(s, "not a cron", time.Hour)
	require.Error(t, err)
}
