package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepository is the single-node waiting room. Same semantics as the
// Redis implementation, guarded by one mutex.
type memoryRepository struct {
	mu         sync.Mutex
	tokens     map[string]*Token  // token -> state
	userTokens map[string]string  // target/user -> token
	waiting    map[int64][]string // target -> tokens in issue order
	entered    map[int64]map[string]struct{}
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		tokens:     make(map[string]*Token),
		userTokens: make(map[string]string),
		waiting:    make(map[int64][]string),
		entered:    make(map[int64]map[string]struct{}),
	}
}

func userKey(targetID int64, userID uuid.UUID) string {
	return fmt.Sprintf("%d/%s", targetID, userID.String())
}

func (m *memoryRepository) IssueToken(ctx context.Context, targetID int64, userID uuid.UUID, token string, status Status, ttl time.Duration) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	uKey := userKey(targetID, userID)

	if existingToken, ok := m.userTokens[uKey]; ok {
		if existing, ok := m.tokens[existingToken]; ok && !existing.IsExpired(now) {
			copied := *existing
			copied.Rank = m.rankLocked(existing)
			return &copied, nil
		}
		m.evictLocked(existingToken)
	}

	t := &Token{
		Token:     token,
		UserID:    userID,
		TargetID:  targetID,
		Status:    status,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	m.tokens[token] = t
	m.userTokens[uKey] = token

	if status == StatusWaiting {
		m.waiting[targetID] = append(m.waiting[targetID], token)
	} else {
		if m.entered[targetID] == nil {
			m.entered[targetID] = make(map[string]struct{})
		}
		m.entered[targetID][token] = struct{}{}
	}

	copied := *t
	copied.Rank = m.rankLocked(t)
	return &copied, nil
}

func (m *memoryRepository) FindByTargetAndUser(ctx context.Context, targetID int64, userID uuid.UUID) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.userTokens[userKey(targetID, userID)]
	if !ok {
		return nil, nil
	}
	return m.findLocked(targetID, token), nil
}

func (m *memoryRepository) FindByTargetAndToken(ctx context.Context, targetID int64, token string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(targetID, token), nil
}

func (m *memoryRepository) findLocked(targetID int64, token string) *Token {
	t, ok := m.tokens[token]
	if !ok || t.TargetID != targetID {
		return nil
	}

	copied := *t
	if t.IsExpired(time.Now()) {
		copied.Status = StatusExpired
		return &copied
	}
	copied.Rank = m.rankLocked(t)
	return &copied
}

// rankLocked is the 1-based position among live WAITING tokens.
func (m *memoryRepository) rankLocked(t *Token) int64 {
	if t.Status != StatusWaiting {
		return 0
	}
	now := time.Now()
	var rank int64
	for _, tok := range m.waiting[t.TargetID] {
		w, ok := m.tokens[tok]
		if !ok || w.IsExpired(now) {
			continue
		}
		rank++
		if tok == t.Token {
			return rank
		}
	}
	return 0
}

func (m *memoryRepository) CountEnteredActive(ctx context.Context, targetID int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for tok := range m.entered[targetID] {
		t, ok := m.tokens[tok]
		if !ok || t.IsExpired(now) {
			m.evictLocked(tok)
			continue
		}
		count++
	}
	return count, nil
}

func (m *memoryRepository) HasWaiting(ctx context.Context, targetID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, tok := range m.waiting[targetID] {
		if t, ok := m.tokens[tok]; ok && !t.IsExpired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepository) WaitingTokens(ctx context.Context, targetID int64, limit int) ([]*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var tokens []*Token
	for _, tok := range m.waiting[targetID] {
		if len(tokens) >= limit {
			break
		}
		t, ok := m.tokens[tok]
		if !ok || t.IsExpired(now) {
			continue
		}
		copied := *t
		tokens = append(tokens, &copied)
	}
	return tokens, nil
}

func (m *memoryRepository) Promote(ctx context.Context, token *Token, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[token.Token]
	if !ok {
		return nil
	}

	t.Status = StatusEntered
	t.ExpiresAt = time.Now().Add(ttl)

	m.removeFromWaitingLocked(t.TargetID, t.Token)
	if m.entered[t.TargetID] == nil {
		m.entered[t.TargetID] = make(map[string]struct{})
	}
	m.entered[t.TargetID][t.Token] = struct{}{}

	token.Status = StatusEntered
	token.ExpiresAt = t.ExpiresAt
	token.Rank = 0
	return nil
}

func (m *memoryRepository) Remove(ctx context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(token.Token)
	return nil
}

func (m *memoryRepository) ActiveTargetIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var targets []int64
	for targetID, tokens := range m.waiting {
		for _, tok := range tokens {
			if t, ok := m.tokens[tok]; ok && !t.IsExpired(now) {
				targets = append(targets, targetID)
				break
			}
		}
	}
	return targets, nil
}

func (m *memoryRepository) evictLocked(token string) {
	t, ok := m.tokens[token]
	if !ok {
		return
	}
	delete(m.tokens, token)
	delete(m.userTokens, userKey(t.TargetID, t.UserID))
	m.removeFromWaitingLocked(t.TargetID, token)
	if set, ok := m.entered[t.TargetID]; ok {
		delete(set, token)
	}
}

func (m *memoryRepository) removeFromWaitingLocked(targetID int64, token string) {
	list := m.waiting[targetID]
	for i, tok := range list {
		if tok == token {
			m.waiting[targetID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
