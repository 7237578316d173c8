package reservations

type ReserveRequest struct {
	ShowID         int64   `json:"show_id" binding:"required,gt=0"`
	SeatIDs        []int64 `json:"seat_ids" binding:"required,min=1,max=10,dive,gt=0"`
	QueueToken     string  `json:"queue_token" binding:"required"`
	IdempotencyKey string  `json:"-"`
}
