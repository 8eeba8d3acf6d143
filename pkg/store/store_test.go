package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
	"snapfeed/pkg/utils"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger.Init("error")
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveNotif(t *testing.T, s *Store, userID string, read bool, ts int64) models.Notification {
	t.Helper()
	n := models.Notification{
		ID:        utils.GenID(),
		UserID:    userID,
		Type:      models.NotificationLike,
		Title:     "New Like",
		CreatedTS: ts,
		IsRead:    read,
	}
	require.NoError(t, s.SaveNotification(&n))
	return n
}

func TestListNotificationsNewestFirstPaged(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		saveNotif(t, s, "u1", false, int64(1000+i))
	}
	saveNotif(t, s, "u2", false, 2000)

	page1, total, err := s.ListNotifications("u1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 3)
	assert.Equal(t, int64(1004), page1[0].CreatedTS)
	assert.Equal(t, int64(1002), page1[2].CreatedTS)

	page2, _, err := s.ListNotifications("u1", 2, 3)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, int64(1001), page2[0].CreatedTS)
}

func TestNotificationsSinceExcludesBoundary(t *testing.T) {
	s := openTestStore(t)
	saveNotif(t, s, "u1", false, 100)
	saveNotif(t, s, "u1", false, 200)
	saveNotif(t, s, "u1", false, 300)

	out, err := s.NotificationsSince("u1", 200)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(300), out[0].CreatedTS)
}

func TestMarkNotificationReadOwnership(t *testing.T) {
	s := openTestStore(t)
	n := saveNotif(t, s, "u1", false, 100)

	// another user cannot flip it
	err := s.MarkNotificationRead(n.ID, "u2", true)
	assert.Equal(t, ErrNotificationNotFound, err)

	require.NoError(t, s.MarkNotificationRead(n.ID, "u1", true))
	count, err := s.CountUnreadNotifications("u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 4; i++ {
		saveNotif(t, s, "u1", false, int64(100+i))
	}
	require.NoError(t, s.MarkAllNotificationsRead("u1"))
	count, err := s.CountUnreadNotifications("u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPurgeReadNotificationsBefore(t *testing.T) {
	s := openTestStore(t)
	saveNotif(t, s, "u1", true, 100)  // old and read: purged
	saveNotif(t, s, "u1", false, 100) // old but unread: kept
	saveNotif(t, s, "u1", true, 900)  // read but recent: kept

	n, err := s.PurgeReadNotificationsBefore(500)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, total, err := s.ListNotifications("u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func newConversation(t *testing.T, s *Store, a, b string) models.Conversation {
	t.Helper()
	c := models.Conversation{ID: utils.GenConversationID(), Participants: []string{a, b}}
	require.NoError(t, s.SaveConversation(&c))
	return c
}

func TestConversationListSortedByActivity(t *testing.T) {
	s := openTestStore(t)
	c1 := newConversation(t, s, "a", "b")
	c2 := newConversation(t, s, "a", "c")
	require.NoError(t, s.TouchConversation(c1.ID, 500))
	require.NoError(t, s.TouchConversation(c2.ID, 900))

	out, err := s.ListConversations("a")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, c2.ID, out[0].ID)

	// b only sees its own conversation
	outB, err := s.ListConversations("b")
	require.NoError(t, err)
	require.Len(t, outB, 1)
	assert.Equal(t, c1.ID, outB[0].ID)
}

func TestFindConversationWith(t *testing.T) {
	s := openTestStore(t)
	c := newConversation(t, s, "a", "b")

	got, err := s.FindConversationWith("a", "b")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = s.FindConversationWith("a", "zz")
	assert.Equal(t, ErrConversationNotFound, err)
}

func sendMessage(t *testing.T, s *Store, convID, sender, content string) models.Message {
	t.Helper()
	m := models.Message{ID: utils.GenID(), ConversationID: convID, SenderID: sender, Content: content}
	require.NoError(t, s.SaveMessage(&m))
	return m
}

func TestMessageOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	c := newConversation(t, s, "a", "b")
	for i := 0; i < 5; i++ {
		sendMessage(t, s, c.ID, "a", fmt.Sprintf("m%d", i))
	}

	msgs, err := s.ListMessages(c.ID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].Content)
	assert.Equal(t, "m4", msgs[2].Content)
}

func TestSoftDeleteHidesFromListKeepsRow(t *testing.T) {
	s := openTestStore(t)
	c := newConversation(t, s, "a", "b")
	m := sendMessage(t, s, c.ID, "a", "hello")

	m.IsDeleted = true
	m.Content = models.TombstoneText
	require.NoError(t, s.UpdateMessage(&m))

	msgs, err := s.ListMessages(c.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	got, err := s.GetMessage(m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, models.TombstoneText, got.Content)
}

func TestMarkConversationReadAddsReceipts(t *testing.T) {
	s := openTestStore(t)
	c := newConversation(t, s, "a", "b")
	sendMessage(t, s, c.ID, "a", "hi")
	sendMessage(t, s, c.ID, "a", "there")
	sendMessage(t, s, c.ID, "b", "yo")

	// b reads a's two messages; its own message is untouched
	n, err := s.MarkConversationRead(c.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// repeated mark is a no-op
	n, err = s.MarkConversationRead(c.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msgs, err := s.ListMessages(c.ID, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.SenderID == "a" {
			require.Len(t, m.Reads, 1)
			assert.Equal(t, "b", m.Reads[0].UserID)
			assert.NotZero(t, m.Reads[0].ReadTS)
		}
	}
}

func TestCountUnreadMessagesAcrossConversations(t *testing.T) {
	s := openTestStore(t)
	c1 := newConversation(t, s, "a", "b")
	c2 := newConversation(t, s, "a", "c")
	sendMessage(t, s, c1.ID, "b", "one")
	sendMessage(t, s, c2.ID, "c", "two")
	sendMessage(t, s, c2.ID, "a", "mine")

	n, err := s.CountUnreadMessages("a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.MarkConversationRead(c1.ID, "a")
	require.NoError(t, err)
	n, err = s.CountUnreadMessages("a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLastMessage(t *testing.T) {
	s := openTestStore(t)
	c := newConversation(t, s, "a", "b")

	m, err := s.LastMessage(c.ID)
	require.NoError(t, err)
	assert.Nil(t, m)

	sendMessage(t, s, c.ID, "a", "first")
	last := sendMessage(t, s, c.ID, "b", "second")
	m, err = s.LastMessage(c.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, last.ID, m.ID)
}
