package apiclient

import (
	"context"
	"fmt"

	"queuehive/internal/models"
)

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.get(ctx, "/superadmin/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/superadmin/users/%d", id))
}

func (c *Client) ListAllTokens(ctx context.Context) ([]models.Token, error) {
	return c.listTokens(ctx, "/superadmin/tokens")
}

func (c *Client) DashboardOverview(ctx context.Context) (models.DashboardOverview, error) {
	var overview models.DashboardOverview
	if err := c.get(ctx, "/superadmin/dashboard/overview", &overview); err != nil {
		return models.DashboardOverview{}, err
	}
	return overview, nil
}
