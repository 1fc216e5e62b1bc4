package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"queuehive/internal/models"
)

func (c *Client) CreateToken(ctx context.Context, userID, serviceID int64) (models.Token, error) {
	var token models.Token
	if err := c.post(ctx, "/tokens", CreateTokenRequest{UserID: userID, ServiceID: serviceID}, &token); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

func (c *Client) GetToken(ctx context.Context, id int64) (models.Token, error) {
	var token models.Token
	if err := c.get(ctx, fmt.Sprintf("/tokens/%d", id), &token); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

// GetQueuePosition returns the number of active tokens ahead of id.
func (c *Client) GetQueuePosition(ctx context.Context, id int64) (int, error) {
	var position models.QueuePosition
	if err := c.get(ctx, fmt.Sprintf("/tokens/%d/position", id), &position); err != nil {
		return 0, err
	}
	return position.Position, nil
}

// ListUserTokens returns the user's active tokens.
func (c *Client) ListUserTokens(ctx context.Context, userID int64) ([]models.Token, error) {
	return c.listTokens(ctx, fmt.Sprintf("/tokens/user/%d", userID))
}

// ListAllUserTokens includes finished tokens.
func (c *Client) ListAllUserTokens(ctx context.Context, userID int64) ([]models.Token, error) {
	return c.listTokens(ctx, fmt.Sprintf("/tokens/user/%d/all", userID))
}

func (c *Client) ListActiveTokens(ctx context.Context, serviceID int64) ([]models.Token, error) {
	return c.listTokens(ctx, fmt.Sprintf("/tokens/service/%d/active", serviceID))
}

func (c *Client) listTokens(ctx context.Context, path string) ([]models.Token, error) {
	var tokens []models.Token
	if err := c.get(ctx, path, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// CallNext moves the oldest PENDING token of the service to CALLING. A zero
// token means the queue was empty.
func (c *Client) CallNext(ctx context.Context, serviceID int64) (models.Token, error) {
	var token models.Token
	if err := c.post(ctx, fmt.Sprintf("/tokens/service/%d/call-next", serviceID), nil, &token); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

func (c *Client) MarkServed(ctx context.Context, id int64) (models.Token, error) {
	return c.tokenAction(ctx, id, "mark-served")
}

func (c *Client) SkipToken(ctx context.Context, id int64) (models.Token, error) {
	return c.tokenAction(ctx, id, "skip")
}

func (c *Client) CancelToken(ctx context.Context, id int64) (models.Token, error) {
	return c.tokenAction(ctx, id, "cancel")
}

func (c *Client) tokenAction(ctx context.Context, id int64, action string) (models.Token, error) {
	var token models.Token
	if err := c.put(ctx, fmt.Sprintf("/tokens/%d/%s", id, action), nil, &token); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

func (c *Client) SetTokenStatus(ctx context.Context, id int64, status models.Status) (models.Token, error) {
	if err := (statusUpdate{status: status}).Validate(); err != nil {
		return models.Token{}, err
	}
	var token models.Token
	query := url.Values{"status": []string{string(status)}}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/tokens/%d/status", id), query, nil, &token); err != nil {
		return models.Token{}, err
	}
	return token, nil
}
