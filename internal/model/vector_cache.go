package model

type VectorCache struct {
	ModelName   string    `json:"model_name"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	Ctime       int64     `json:"ctime"`
}
