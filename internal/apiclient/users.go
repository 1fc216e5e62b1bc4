package apiclient

import (
	"context"
	"fmt"

	"queuehive/internal/models"
)

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var user models.User
	if err := c.get(ctx, "/users/me", &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (models.User, error) {
	var user models.User
	if err := c.put(ctx, "/users/update", req, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (c *Client) UpdatePassword(ctx context.Context, userID int64, req UpdatePasswordRequest) error {
	return c.put(ctx, fmt.Sprintf("/users/%d/update-password", userID), req, nil)
}
