package apiclient

import (
	"context"
	"fmt"

	"queuehive/internal/models"
)

func (c *Client) ListServices(ctx context.Context, companyID int64) ([]models.Service, error) {
	var services []models.Service
	if err := c.get(ctx, fmt.Sprintf("/services/company/%d", companyID), &services); err != nil {
		return nil, err
	}
	return services, nil
}

func (c *Client) GetService(ctx context.Context, id int64) (models.Service, error) {
	var service models.Service
	if err := c.get(ctx, fmt.Sprintf("/services/%d", id), &service); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (c *Client) CreateService(ctx context.Context, req CreateServiceRequest) (models.Service, error) {
	var service models.Service
	if err := c.post(ctx, "/services", req, &service); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (c *Client) UpdateService(ctx context.Context, id int64, req UpdateServiceRequest) (models.Service, error) {
	var service models.Service
	if err := c.put(ctx, fmt.Sprintf("/services/%d", id), req, &service); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (c *Client) DeleteService(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/services/%d", id))
}
