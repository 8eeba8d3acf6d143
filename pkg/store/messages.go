package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
)

// ErrMessageNotFound is returned when a message id lookup misses.
var ErrMessageNotFound = fmt.Errorf("message not found")

func msgPrefix(convID string) string { return "msg:" + convID + ":" }

// SaveMessage appends a message to its conversation and indexes it by id.
// A zero CreatedTS is stamped with the current time.
func (s *Store) SaveMessage(m *models.Message) error {
	if m.CreatedTS == 0 {
		m.CreatedTS = nowNS()
	}
	if m.UpdatedTS == 0 {
		m.UpdatedTS = m.CreatedTS
	}
	if m.Reads == nil {
		m.Reads = []models.MessageRead{}
	}
	key := msgPrefix(m.ConversationID) + s.timeKey(m.CreatedTS)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.set(key, data); err != nil {
		logger.Error("save_message_failed", "conversation", m.ConversationID, "key", key, "error", err)
		return err
	}
	if err := s.set("msgid:"+m.ID, []byte(key)); err != nil {
		return err
	}
	logger.Info("message_saved", "conversation", m.ConversationID, "id", m.ID)
	return nil
}

// GetMessage loads one message by id.
func (s *Store) GetMessage(id string) (*models.Message, error) {
	m, _, err := s.getMessageWithKey(id)
	return m, err
}

func (s *Store) getMessageWithKey(id string) (*models.Message, string, error) {
	keyB, err := s.get("msgid:" + id)
	if err != nil {
		if IsNotFound(err) {
			return nil, "", ErrMessageNotFound
		}
		return nil, "", err
	}
	raw, err := s.get(string(keyB))
	if err != nil {
		if IsNotFound(err) {
			return nil, "", ErrMessageNotFound
		}
		return nil, "", err
	}
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, "", fmt.Errorf("invalid message row: %w", err)
	}
	return &m, string(keyB), nil
}

// UpdateMessage rewrites a message row in place, preserving its position in
// the conversation's time order.
func (s *Store) UpdateMessage(m *models.Message) error {
	_, key, err := s.getMessageWithKey(m.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.set(key, data)
}

// ListMessages returns a conversation's non-deleted messages in insertion
// order, capped at the most recent limit rows.
func (s *Store) ListMessages(convID string, limit int) ([]models.Message, error) {
	var all []models.Message
	err := s.scanMessages(convID, func(key []byte, m *models.Message) error {
		if m.IsDeleted {
			return nil
		}
		all = append(all, *m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// MarkConversationRead adds a read receipt for userID to every message in
// the conversation that userID did not send and has not yet read. It returns
// how many messages were newly marked.
func (s *Store) MarkConversationRead(convID, userID string) (int, error) {
	ts := nowNS()
	type pending struct {
		key []byte
		m   models.Message
	}
	var dirty []pending
	err := s.scanMessages(convID, func(key []byte, m *models.Message) error {
		if m.SenderID == userID {
			return nil
		}
		for _, r := range m.Reads {
			if r.UserID == userID {
				return nil
			}
		}
		m.Reads = append(m.Reads, models.MessageRead{UserID: userID, ReadTS: ts})
		dirty = append(dirty, pending{key: append([]byte(nil), key...), m: *m})
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, p := range dirty {
		data, err := json.Marshal(&p.m)
		if err != nil {
			return 0, err
		}
		if err := s.set(string(p.key), data); err != nil {
			return 0, err
		}
	}
	return len(dirty), nil
}

// CountUnreadMessages counts messages across all of userID's conversations
// that were sent by someone else and carry no receipt from userID. Deleted
// messages still count until read, matching the conversation badge.
func (s *Store) CountUnreadMessages(userID string) (int, error) {
	convs, err := s.ListConversations(userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range convs {
		n, err := s.CountUnreadInConversation(c.ID, userID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// CountUnreadInConversation counts one conversation's messages unread by
// userID.
func (s *Store) CountUnreadInConversation(convID, userID string) (int, error) {
	count := 0
	err := s.scanMessages(convID, func(key []byte, m *models.Message) error {
		if m.SenderID == userID {
			return nil
		}
		for _, r := range m.Reads {
			if r.UserID == userID {
				return nil
			}
		}
		count++
		return nil
	})
	return count, err
}

// LastMessage returns the newest message of a conversation, or nil when the
// conversation is empty.
func (s *Store) LastMessage(convID string) (*models.Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte(msgPrefix(convID))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	if !iter.Last() || !bytes.HasPrefix(iter.Key(), prefix) {
		return nil, iter.Error()
	}
	var m models.Message
	if err := json.Unmarshal(iter.Value(), &m); err != nil {
		return nil, fmt.Errorf("invalid message row: %w", err)
	}
	return &m, iter.Error()
}

func (s *Store) scanMessages(convID string, fn func(key []byte, m *models.Message) error) error {
	if s.db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte(msgPrefix(convID))
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
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return fmt.Errorf("invalid message row: %w", err)
		}
		if err := fn(iter.Key(), &m); err != nil {
			return err
		}
	}
	return iter.Error()
}
