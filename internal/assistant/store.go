package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Store persists one message log per owner identity.
//
// Load returns (nil, nil) when nothing is stored or the stored value cannot be
// decoded; errors are reserved for transport failures.
type Store interface {
	Load(ctx context.Context, owner string) ([]Message, error)
	Save(ctx context.Context, owner string, messages []Message) error
}

// EncodeMessages serializes a log using the persistence schema.
func EncodeMessages(messages []Message) ([]byte, error) {
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("assistant: encode messages: %w", err)
	}
	return data, nil
}

// errMalformed marks data that decodes but violates the log invariants.
var errMalformed = errors.New("assistant: malformed session")

// DecodeMessages parses a stored log. Malformed input yields an error the
// stores translate into "no session".
func DecodeMessages(data []byte) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err := validateLog(messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func validateLog(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: empty log", errMalformed)
	}
	for i, m := range messages {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: message %d has no id", errMalformed, i)
		}
		if m.Author != AuthorUser && m.Author != AuthorAgent {
			return fmt.Errorf("%w: message %d has author %q", errMalformed, i, m.Author)
		}
		if m.CreatedAt.IsZero() {
			return fmt.Errorf("%w: message %d has no timestamp", errMalformed, i)
		}
		if i > 0 && !m.CreatedAt.After(messages[i-1].CreatedAt) {
			return fmt.Errorf("%w: message %d is out of order", errMalformed, i)
		}
		if m.DeliveryState != "" {
			if _, ok := deliveryRank[m.DeliveryState]; !ok {
				return fmt.Errorf("%w: message %d has delivery state %q", errMalformed, i, m.DeliveryState)
			}
		}
	}
	return nil
}

// MemoryStore keeps encoded sessions in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Load(_ context.Context, owner string) ([]Message, error) {
	s.mu.RLock()
	raw, ok := s.data[SessionKey(owner)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	messages, err := DecodeMessages(raw)
	if err != nil {
		return nil, nil
	}
	return messages, nil
}

func (s *MemoryStore) Save(_ context.Context, owner string, messages []Message) error {
	data, err := EncodeMessages(messages)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[SessionKey(owner)] = data
	s.mu.Unlock()
	return nil
}

// Raw returns the stored bytes for owner, for diagnostics and tests.
func (s *MemoryStore) Raw(owner string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[SessionKey(owner)]
	return raw, ok
}

// SetRaw stores bytes as-is for owner.
func (s *MemoryStore) SetRaw(owner string, raw []byte) {
	s.mu.Lock()
	s.data[SessionKey(owner)] = raw
	s.mu.Unlock()
}
