package model

import "time"

// Image represents a successfully persisted binary attachment, per spec
// §3.3. Uniqueness: (ProductID, Role) maps to at most one current Image.
type Image struct {
	ImageID     string    `json:"imageId"`
	ProductID   string    `json:"productId"`
	Role        ImageRole `json:"role"`
	ObjectKey   string    `json:"objectKey"`
	PublicURL   string    `json:"publicUrl"`
	ContentHash string    `json:"contentHash"`
	ByteSize    int64     `json:"byteSize"`
	Format      string    `json:"format"`
	UploadedAt  time.Time `json:"uploadedAt"`
}
