package merge

import (
	"encoding/json"
	"fmt"

	"igvault/pkg/logger"
)

// userIdentityLock is the shared container name guarding both halves of the
// user identity index.
const userIdentityLock = "user_identity"

// UpsertUserIdentity records a username/user-id pair in both halves of the
// identity index. The two mappings are persisted together in one atomic
// batch: a crash can never leave one half updated without the other. Stale
// reverse entries from a reassigned username or id are tolerated (last write
// wins on each side independently).
func (s *Store) UpsertUserIdentity(username, userID string) error {
	if username == "" || userID == "" {
		return fmt.Errorf("username and user id are required")
	}

	m := s.lockContainer(userIdentityLock)
	m.Lock()
	defer m.Unlock()

	nameToID, err := s.loadPairs(keyStoriesUserIDs)
	if err != nil {
		return err
	}
	idToName, err := s.loadPairs(keyIDToUsername)
	if err != nil {
		return err
	}

	idJSON, _ := json.Marshal(userID)
	nameJSON, _ := json.Marshal(username)
	nameToID = upsertPairs(nameToID, []Pair{{Key: username, Record: idJSON}})
	idToName = upsertPairs(idToName, []Pair{{Key: userID, Record: nameJSON}})

	nb, err := json.Marshal(nameToID)
	if err != nil {
		return err
	}
	ib, err := json.Marshal(idToName)
	if err != nil {
		return err
	}
	if err := s.backend.SetAll(map[string][]byte{
		keyStoriesUserIDs: nb,
		keyIDToUsername:   ib,
	}); err != nil {
		return fmt.Errorf("%w: write user identity: %v", ErrStorage, err)
	}
	logger.Debug("user_identity_saved", "username", username, "user_id", userID)
	return nil
}

// LookupUserID returns the last user id stored for a username.
func (s *Store) LookupUserID(username string) (string, bool, error) {
	return s.lookupIdentity(keyStoriesUserIDs, username)
}

// LookupUsername returns the last username stored for a user id.
func (s *Store) LookupUsername(userID string) (string, bool, error) {
	return s.lookupIdentity(keyIDToUsername, userID)
}

func (s *Store) lookupIdentity(half, key string) (string, bool, error) {
	m := s.lockContainer(userIdentityLock)
	m.Lock()
	defer m.Unlock()

	pairs, err := s.loadPairs(half)
	if err != nil {
		return "", false, err
	}
	for _, p := range pairs {
		if p.Key == key {
			var v string
			if err := json.Unmarshal(p.Record, &v); err != nil {
				return "", false, nil
			}
			return v, true, nil
		}
	}
	return "", false, nil
}

// UserIdentity returns both halves of the identity index.
func (s *Store) UserIdentity() (nameToID, idToName []Pair, err error) {
	m := s.lockContainer(userIdentityLock)
	m.Lock()
	defer m.Unlock()

	nameToID, err = s.loadPairs(keyStoriesUserIDs)
	if err != nil {
		return nil, nil, err
	}
	idToName, err = s.loadPairs(keyIDToUsername)
	if err != nil {
		return nil, nil, err
	}
	return nameToID, idToName, nil
}

// ResetUserIdentity clears both halves of the identity index. The index is
// session-scoped: the host resets it on every startup while all other
// containers persist.
func (s *Store) ResetUserIdentity() error {
	m := s.lockContainer(userIdentityLock)
	m.Lock()
	defer m.Unlock()

	empty := []byte("[]")
	if err := s.backend.SetAll(map[string][]byte{
		keyStoriesUserIDs: empty,
		keyIDToUsername:   empty,
	}); err != nil {
		return fmt.Errorf("%w: reset user identity: %v", ErrStorage, err)
	}
	return nil
}
