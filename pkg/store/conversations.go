package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"snapfeed/pkg/models"
)

// ErrConversationNotFound is returned when a conversation id lookup misses.
var ErrConversationNotFound = fmt.Errorf("conversation not found")

// SaveConversation writes conversation metadata and the participant index.
func (s *Store) SaveConversation(c *models.Conversation) error {
	if c.CreatedTS == 0 {
		c.CreatedTS = nowNS()
	}
	if c.UpdatedTS == 0 {
		c.UpdatedTS = c.CreatedTS
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := s.set("conv:"+c.ID, data); err != nil {
		return err
	}
	for _, p := range c.Participants {
		if err := s.set("userconv:"+p+":"+c.ID, []byte(c.ID)); err != nil {
			return err
		}
	}
	return nil
}

// GetConversation loads one conversation by id.
func (s *Store) GetConversation(id string) (*models.Conversation, error) {
	raw, err := s.get("conv:" + id)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	var c models.Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid conversation row: %w", err)
	}
	return &c, nil
}

// TouchConversation bumps UpdatedTS to ts; conversation lists sort on it.
func (s *Store) TouchConversation(id string, ts int64) error {
	c, err := s.GetConversation(id)
	if err != nil {
		return err
	}
	c.UpdatedTS = ts
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.set("conv:"+id, data)
}

// ListConversations returns every conversation userID participates in,
// most recently updated first.
func (s *Store) ListConversations(userID string) ([]models.Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := []byte("userconv:" + userID + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		ids = append(ids, string(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return nil, err
	}
	iter.Close()

	out := make([]models.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetConversation(id)
		if err != nil {
			if err == ErrConversationNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedTS > out[j].UpdatedTS })
	return out, nil
}

// FindConversationWith returns the existing two-party conversation between
// userID and otherID, or ErrConversationNotFound.
func (s *Store) FindConversationWith(userID, otherID string) (*models.Conversation, error) {
	convs, err := s.ListConversations(userID)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		c := &convs[i]
		if len(c.Participants) == 2 && c.HasParticipant(otherID) {
			return c, nil
		}
	}
	return nil, ErrConversationNotFound
}
