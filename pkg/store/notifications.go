package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
)

// ErrNotificationNotFound is returned when an id lookup misses.
var ErrNotificationNotFound = fmt.Errorf("notification not found")

func notifPrefix(userID string) string { return "notif:" + userID + ":" }

// SaveNotification appends a notification for its recipient and indexes it
// by id. A zero CreatedTS is stamped with the current time.
func (s *Store) SaveNotification(n *models.Notification) error {
	if n.CreatedTS == 0 {
		n.CreatedTS = nowNS()
	}
	key := notifPrefix(n.UserID) + s.timeKey(n.CreatedTS)
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.set(key, data); err != nil {
		logger.Error("save_notification_failed", "user", n.UserID, "key", key, "error", err)
		return err
	}
	if err := s.set("notifid:"+n.ID, []byte(key)); err != nil {
		return err
	}
	logger.Info("notification_saved", "user", n.UserID, "id", n.ID, "type", n.Type)
	return nil
}

// ListNotifications returns one page of a recipient's notifications, newest
// first, along with the total row count.
func (s *Store) ListNotifications(userID string, page, limit int) ([]models.Notification, int, error) {
	if s.db == nil {
		return nil, 0, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte(notifPrefix(userID))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	skip := (page - 1) * limit
	var out []models.Notification
	total := 0
	// reverse scan: newest rows have the largest timestamp keys
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if total >= skip && len(out) < limit {
			var n models.Notification
			if err := json.Unmarshal(iter.Value(), &n); err != nil {
				return nil, 0, fmt.Errorf("invalid notification row: %w", err)
			}
			out = append(out, n)
		}
		total++
	}
	return out, total, iter.Error()
}

// NotificationsSince returns a recipient's notifications created strictly
// after sinceTS, newest first.
func (s *Store) NotificationsSince(userID string, sinceTS int64) ([]models.Notification, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte(notifPrefix(userID))
	lower := []byte(fmt.Sprintf("%s%020d", notifPrefix(userID), sinceTS+1))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []models.Notification
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			return nil, fmt.Errorf("invalid notification row: %w", err)
		}
		out = append(out, n)
	}
	return out, iter.Error()
}

// CountUnreadNotifications returns how many of a recipient's notifications
// are unread.
func (s *Store) CountUnreadNotifications(userID string) (int, error) {
	count := 0
	err := s.scanNotifications(userID, func(key []byte, n *models.Notification) error {
		if !n.IsRead {
			count++
		}
		return nil
	})
	return count, err
}

// MarkNotificationRead flips the read flag of one notification. It fails
// with ErrNotificationNotFound unless the notification exists and belongs to
// userID.
func (s *Store) MarkNotificationRead(id, userID string, read bool) error {
	keyB, err := s.get("notifid:" + id)
	if err != nil {
		if IsNotFound(err) {
			return ErrNotificationNotFound
		}
		return err
	}
	raw, err := s.get(string(keyB))
	if err != nil {
		if IsNotFound(err) {
			return ErrNotificationNotFound
		}
		return err
	}
	var n models.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("invalid notification row: %w", err)
	}
	if n.UserID != userID {
		return ErrNotificationNotFound
	}
	if n.IsRead == read {
		return nil
	}
	n.IsRead = read
	data, err := json.Marshal(&n)
	if err != nil {
		return err
	}
	return s.set(string(keyB), data)
}

// MarkAllNotificationsRead flips every unread notification of a recipient.
func (s *Store) MarkAllNotificationsRead(userID string) error {
	type pending struct {
		key []byte
		n   models.Notification
	}
	var dirty []pending
	err := s.scanNotifications(userID, func(key []byte, n *models.Notification) error {
		if !n.IsRead {
			n.IsRead = true
			dirty = append(dirty, pending{key: append([]byte(nil), key...), n: *n})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range dirty {
		data, err := json.Marshal(&p.n)
		if err != nil {
			return err
		}
		if err := s.set(string(p.key), data); err != nil {
			return err
		}
	}
	return nil
}

// PurgeReadNotificationsBefore removes read notifications created before
// cutoffTS for all recipients and returns how many rows were dropped.
func (s *Store) PurgeReadNotificationsBefore(cutoffTS int64) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte("notif:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return 0, err
	}
	var victims []string
	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			continue
		}
		if n.IsRead && n.CreatedTS < cutoffTS {
			victims = append(victims, string(iter.Key()))
			ids = append(ids, n.ID)
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	iter.Close()
	for i, k := range victims {
		if err := s.delete(k); err != nil {
			return i, err
		}
		_ = s.delete("notifid:" + ids[i])
	}
	return len(victims), nil
}

func (s *Store) scanNotifications(userID string, fn func(key []byte, n *models.Notification) error) error {
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte(notifPrefix(userID))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			return fmt.Errorf("invalid notification row: %w", err)
		}
		if err := fn(iter.Key(), &n); err != nil {
			return err
		}
	}
	return iter.Error()
}
