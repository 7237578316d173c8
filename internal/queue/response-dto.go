package queue

import "time"

type TokenResponse struct {
	Token     string    `json:"token"`
	TargetID  int64     `json:"target_id"`
	Status    Status    `json:"status"`
	Rank      int64     `json:"rank"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewTokenResponse(t *Token) *TokenResponse {
	return &TokenResponse{
		Token:     t.Token,
		TargetID:  t.TargetID,
		Status:    t.Status,
		Rank:      t.Rank,
		ExpiresAt: t.ExpiresAt,
	}
}

type StatusResponse struct {
	Status Status `json:"status"`
	Rank   int64  `json:"rank"`
}
