package apiclient

import (
	"context"

	"queuehive/internal/models"
)

func (c *Client) Login(ctx context.Context, req LoginRequest) (models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.post(ctx, "/auth/login", req, &resp); err != nil {
		return models.LoginResponse{}, err
	}
	return resp, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	var user models.User
	if err := c.post(ctx, "/auth/register", req, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// RegisterCompany creates a company admin together with a pending company.
// The admin cannot log in until a super-admin approves the company.
func (c *Client) RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.post(ctx, "/auth/register-company", req, &resp); err != nil {
		return models.LoginResponse{}, err
	}
	return resp, nil
}
