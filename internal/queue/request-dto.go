package queue

type IssueTokenRequest struct {
	TargetID int64 `json:"target_id" binding:"required,gt=0"`
}
