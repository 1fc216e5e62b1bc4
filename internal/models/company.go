package models

type Company struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Category    string    `json:"category,omitempty"`
	Approved    bool      `json:"approved"`
	OwnerID     int64     `json:"ownerId,omitempty"`
	CreatedAt   Timestamp `json:"createdAt"`
}
