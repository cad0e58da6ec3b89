package store

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Index tier keys, ordered by trust. Readers take the first tier whose
// value parses as a non-null identity list; writers mirror to the first
// two and leave the legacy tier read-only.
var indexTiers = []string{
	"nanom_users",
	"nanom_users_backup",
	"nanom_users_legacy",
}

const blobKeyPrefix = "nanom_data_"

// SessionStore persists per-identity data blobs plus the identity index
// that enumerates them.
type SessionStore struct {
	kv     KV
	logger *zap.Logger
}

func NewSessionStore(kv KV, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{kv: kv, logger: logger}
}

// ListIdentities returns the identity index from the most trusted tier
// that holds a parseable, non-null list. Later tiers are never merged in;
// the winning tier is taken entirely.
func (s *SessionStore) ListIdentities() ([]string, error) {
	for _, tier := range indexTiers {
		raw, found, err := s.kv.Get(tier)
		if err != nil {
			return nil, fmt.Errorf("read index tier %s: %w", tier, err)
		}
		if !found {
			continue
		}
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			s.logger.Warn("skipping unreadable index tier",
				zap.String("tier", tier), zap.Error(err))
			continue
		}
		if ids == nil {
			continue
		}
		return ids, nil
	}
	return []string{}, nil
}

// Save writes the blob for an identity and registers the identity in the
// index, mirrored to the primary and backup tiers.
func (s *SessionStore) Save(email string, data json.RawMessage) error {
	if err := s.kv.Set(blobKeyPrefix+email, string(data)); err != nil {
		return fmt.Errorf("save blob for %s: %w", email, err)
	}

	ids, err := s.ListIdentities()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == email {
			return nil
		}
	}
	ids = append(ids, email)
	return s.writeIndex(ids)
}

// Load returns the stored blob for an identity, or (nil, false, nil) when
// none exists.
func (s *SessionStore) Load(email string) (json.RawMessage, bool, error) {
	raw, found, err := s.kv.Get(blobKeyPrefix + email)
	if err != nil {
		return nil, false, fmt.Errorf("load blob for %s: %w", email, err)
	}
	if !found {
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

// Delete removes an identity's blob and drops it from the index.
func (s *SessionStore) Delete(email string) error {
	if err := s.kv.Delete(blobKeyPrefix + email); err != nil {
		return fmt.Errorf("delete blob for %s: %w", email, err)
	}

	ids, err := s.ListIdentities()
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != email {
			kept = append(kept, id)
		}
	}
	return s.writeIndex(kept)
}

// MergeRemote overwrites the local blob for an identity with the remote
// copy. Remote wins wholesale; no field-level reconciliation happens here.
func (s *SessionStore) MergeRemote(email string, remote json.RawMessage) error {
	return s.Save(email, remote)
}

func (s *SessionStore) writeIndex(ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := s.kv.Set(indexTiers[0], string(raw)); err != nil {
		return fmt.Errorf("write primary index: %w", err)
	}
	if err := s.kv.Set(indexTiers[1], string(raw)); err != nil {
		return fmt.Errorf("write backup index: %w", err)
	}
	return nil
}
