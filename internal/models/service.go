package models

type Service struct {
	ID                 int64  `json:"id"`
	CompanyID          int64  `json:"companyId"`
	CompanyName        string `json:"companyName,omitempty"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	AverageServiceTime int    `json:"averageServiceTime"`
}
