package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	waitingKeyFmt   = "queue:%d:waiting"
	enteredKeyFmt   = "queue:%d:entered"
	tokenKeyFmt     = "queue:token:%s"
	userTokenKeyFmt = "queue:user:%d:%s"

	// Redis keys outlive the logical TTL slightly so a just-expired token
	// resolves to EXPIRED instead of NotFound.
	ttlGrace = time.Minute
)

type redisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) Repository {
	return &redisRepository{client: client}
}

func waitingKey(targetID int64) string  { return fmt.Sprintf(waitingKeyFmt, targetID) }
func enteredKey(targetID int64) string  { return fmt.Sprintf(enteredKeyFmt, targetID) }
func tokenKey(token string) string      { return fmt.Sprintf(tokenKeyFmt, token) }
func userTokenKey(targetID int64, userID uuid.UUID) string {
	return fmt.Sprintf(userTokenKeyFmt, targetID, userID.String())
}

func (r *redisRepository) IssueToken(ctx context.Context, targetID int64, userID uuid.UUID, token string, status Status, ttl time.Duration) (*Token, error) {
	userKey := userTokenKey(targetID, userID)

	// Atomic claim of the per-user slot. Losing the race means a token
	// already exists and we hand that one back.
	isNew, err := r.client.SetNX(ctx, userKey, token, ttl+ttlGrace).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim user token slot: %w", err)
	}
	if !isNew {
		existingToken, err := r.client.Get(ctx, userKey).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to read existing token: %w", err)
		}
		if existingToken != "" {
			existing, err := r.FindByTargetAndToken(ctx, targetID, existingToken)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.Status != StatusExpired {
				return existing, nil
			}
		}
		// Stale mapping: claim the slot ourselves and fall through.
		if err := r.client.Set(ctx, userKey, token, ttl+ttlGrace).Err(); err != nil {
			return nil, fmt.Errorf("failed to reclaim user token slot: %w", err)
		}
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	tokenData := map[string]interface{}{
		"token":      token,
		"user_id":    userID.String(),
		"target_id":  strconv.FormatInt(targetID, 10),
		"status":     string(status),
		"issued_at":  now.Format(time.RFC3339Nano),
		"expires_at": expiresAt.Format(time.RFC3339Nano),
	}

	tKey := tokenKey(token)
	if err := r.client.HSet(ctx, tKey, tokenData).Err(); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	if err := r.client.Expire(ctx, tKey, ttl+ttlGrace).Err(); err != nil {
		return nil, fmt.Errorf("failed to set token TTL: %w", err)
	}

	var queueKey string
	var score float64
	if status == StatusWaiting {
		queueKey = waitingKey(targetID)
		score = float64(now.UnixMilli())
	} else {
		queueKey = enteredKey(targetID)
		score = float64(expiresAt.UnixMilli())
	}
	if err := r.client.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: userID.String()}).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue token: %w", err)
	}

	result := &Token{
		Token:     token,
		UserID:    userID,
		TargetID:  targetID,
		Status:    status,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if status == StatusWaiting {
		rank, err := r.client.ZRank(ctx, queueKey, userID.String()).Result()
		if err == nil {
			result.Rank = rank + 1
		}
	}
	return result, nil
}

func (r *redisRepository) FindByTargetAndUser(ctx context.Context, targetID int64, userID uuid.UUID) (*Token, error) {
	token, err := r.client.Get(ctx, userTokenKey(targetID, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user token mapping: %w", err)
	}
	return r.FindByTargetAndToken(ctx, targetID, token)
}

func (r *redisRepository) FindByTargetAndToken(ctx context.Context, targetID int64, token string) (*Token, error) {
	data, err := r.client.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt token data for %s: %w", token, err)
	}
	storedTarget, _ := strconv.ParseInt(data["target_id"], 10, 64)
	if storedTarget != targetID {
		return nil, nil
	}
	issuedAt, _ := time.Parse(time.RFC3339Nano, data["issued_at"])
	expiresAt, err := time.Parse(time.RFC3339Nano, data["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt token data for %s: %w", token, err)
	}

	result := &Token{
		Token:     token,
		UserID:    userID,
		TargetID:  targetID,
		Status:    Status(data["status"]),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	now := time.Now()
	if result.IsExpired(now) {
		// Lazy eviction: drop the queue membership, keep the hash until its
		// Redis TTL fires so callers see EXPIRED rather than NotFound.
		r.client.ZRem(ctx, waitingKey(targetID), userID.String())
		r.client.ZRem(ctx, enteredKey(targetID), userID.String())
		result.Status = StatusExpired
		return result, nil
	}

	if result.Status == StatusWaiting {
		rank, err := r.client.ZRank(ctx, waitingKey(targetID), userID.String()).Result()
		if err == nil {
			result.Rank = rank + 1
		}
	}
	return result, nil
}

func (r *redisRepository) CountEnteredActive(ctx context.Context, targetID int64, now time.Time) (int64, error) {
	key := enteredKey(targetID)

	// Entered scores are expiry millis, so everything below now is dead.
	if err := r.client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.UnixMilli(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to evict expired entered tokens: %w", err)
	}

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entered tokens: %w", err)
	}
	return count, nil
}

func (r *redisRepository) HasWaiting(ctx context.Context, targetID int64) (bool, error) {
	count, err := r.client.ZCard(ctx, waitingKey(targetID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count waiting tokens: %w", err)
	}
	return count > 0, nil
}

func (r *redisRepository) WaitingTokens(ctx context.Context, targetID int64, limit int) ([]*Token, error) {
	userIDs, err := r.client.ZRange(ctx, waitingKey(targetID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting tokens: %w", err)
	}

	tokens := make([]*Token, 0, len(userIDs))
	for _, rawID := range userIDs {
		userID, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}
		token, err := r.FindByTargetAndUser(ctx, targetID, userID)
		if err != nil {
			return nil, err
		}
		if token == nil || token.Status != StatusWaiting {
			// Orphaned membership, drop it
			r.client.ZRem(ctx, waitingKey(targetID), rawID)
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (r *redisRepository) Promote(ctx context.Context, token *Token, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	tKey := tokenKey(token.Token)

	if err := r.client.HSet(ctx, tKey,
		"status", string(StatusEntered),
		"expires_at", expiresAt.Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("failed to update token status: %w", err)
	}

	member := token.UserID.String()
	if err := r.client.ZRem(ctx, waitingKey(token.TargetID), member).Err(); err != nil {
		return fmt.Errorf("failed to leave waiting set: %w", err)
	}
	if err := r.client.ZAdd(ctx, enteredKey(token.TargetID), redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("failed to join entered set: %w", err)
	}

	r.client.Expire(ctx, tKey, ttl+ttlGrace)
	r.client.Expire(ctx, userTokenKey(token.TargetID, token.UserID), ttl+ttlGrace)

	token.Status = StatusEntered
	token.ExpiresAt = expiresAt
	token.Rank = 0
	return nil
}

func (r *redisRepository) Remove(ctx context.Context, token *Token) error {
	member := token.UserID.String()
	r.client.ZRem(ctx, waitingKey(token.TargetID), member)
	r.client.ZRem(ctx, enteredKey(token.TargetID), member)
	if err := r.client.Del(ctx,
		tokenKey(token.Token),
		userTokenKey(token.TargetID, token.UserID),
	).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (r *redisRepository) ActiveTargetIDs(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	var targets []int64

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "queue:*:waiting", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan waiting keys: %w", err)
		}
		for _, key := range keys {
			parts := strings.Split(key, ":")
			if len(parts) < 3 {
				continue
			}
			targetID, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				continue
			}
			if _, ok := seen[targetID]; !ok {
				seen[targetID] = struct{}{}
				targets = append(targets, targetID)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return targets, nil
}
