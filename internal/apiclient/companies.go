package apiclient

import (
	"context"
	"fmt"

	"queuehive/internal/models"
)

// ListCompanies returns approved companies only.
func (c *Client) ListCompanies(ctx context.Context) ([]models.Company, error) {
	return c.listCompanies(ctx, "/companies")
}

func (c *Client) ListAllCompanies(ctx context.Context) ([]models.Company, error) {
	return c.listCompanies(ctx, "/companies/all")
}

func (c *Client) ListPendingCompanies(ctx context.Context) ([]models.Company, error) {
	return c.listCompanies(ctx, "/companies/pending")
}

func (c *Client) listCompanies(ctx context.Context, path string) ([]models.Company, error) {
	var companies []models.Company
	if err := c.get(ctx, path, &companies); err != nil {
		return nil, err
	}
	return companies, nil
}

func (c *Client) GetCompany(ctx context.Context, id int64) (models.Company, error) {
	var company models.Company
	if err := c.get(ctx, fmt.Sprintf("/companies/%d", id), &company); err != nil {
		return models.Company{}, err
	}
	return company, nil
}

func (c *Client) GetCompanyByOwner(ctx context.Context, ownerID int64) (models.Company, error) {
	var company models.Company
	if err := c.get(ctx, fmt.Sprintf("/companies/owner/%d", ownerID), &company); err != nil {
		return models.Company{}, err
	}
	return company, nil
}

func (c *Client) CreateCompany(ctx context.Context, req CreateCompanyRequest) (models.Company, error) {
	var company models.Company
	if err := c.post(ctx, "/companies", req, &company); err != nil {
		return models.Company{}, err
	}
	return company, nil
}

func (c *Client) UpdateCompany(ctx context.Context, id int64, req UpdateCompanyRequest) (models.Company, error) {
	var company models.Company
	if err := c.put(ctx, fmt.Sprintf("/companies/%d/update", id), req, &company); err != nil {
		return models.Company{}, err
	}
	return company, nil
}

func (c *Client) ApproveCompany(ctx context.Context, id int64) (models.Company, error) {
	var company models.Company
	if err := c.put(ctx, fmt.Sprintf("/companies/%d/approve", id), nil, &company); err != nil {
		return models.Company{}, err
	}
	return company, nil
}

// RejectCompany rejects a pending company with PUT /companies/{id}/reject.
// The backend removes the company, so callers must drop it from any local
// list; a rejected company is never shown again.
func (c *Client) RejectCompany(ctx context.Context, id int64) error {
	return c.put(ctx, fmt.Sprintf("/companies/%d/reject", id), nil, nil)
}

func (c *Client) DeleteCompany(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/companies/%d", id))
}

func (c *Client) DailyVisitors(ctx context.Context, companyID int64) (int, error) {
	var visitors int
	if err := c.get(ctx, fmt.Sprintf("/companies/%d/analytics/daily-visitors", companyID), &visitors); err != nil {
		return 0, err
	}
	return visitors, nil
}

func (c *Client) QueueStats(ctx context.Context, companyID int64) ([]string, error) {
	var stats []string
	if err := c.get(ctx, fmt.Sprintf("/companies/%d/analytics/queue-stats", companyID), &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
