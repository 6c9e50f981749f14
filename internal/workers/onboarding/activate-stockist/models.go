package activatestockist

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	UserID      string `json:"userId"`
	Status      string `json:"status"`
	ActivatedAt string `json:"activatedAt"` // RFC 3339
}
