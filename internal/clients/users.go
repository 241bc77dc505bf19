package clients

import (
	"context"
	"net/http"
	"net/url"
)

const usersServiceName = "users"

// UserClient reads device tokens from and delivers notifications through the user service.
type UserClient interface {
	// GetDeviceToken returns the user's push token, or "" when the user has none.
	GetDeviceToken(ctx context.Context, userID, authorization string) (string, error)
	SendNotification(ctx context.Context, userID, authorization string, notification Notification) error
}

// Notification is the payload the user service stores and pushes to the device.
type Notification struct {
	DeviceToken  string           `json:"device_token"`
	Notification NotificationBody `json:"notification"`
}

type NotificationBody struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	GoalID string `json:"goal_id"`
}

type userResponse struct {
	ID          string `json:"id"`
	DeviceToken string `json:"device_token"`
}

type userClient struct {
	baseClient
}

// NewUserClient creates a client for the user service at baseURL.
func NewUserClient(baseURL string, httpClient *http.Client) UserClient {
	return &userClient{baseClient: newBaseClient(usersServiceName, baseURL, httpClient)}
}

func (c *userClient) GetDeviceToken(ctx context.Context, userID, authorization string) (string, error) {
	var user userResponse
	path := "/users/" + url.PathEscape(userID) + "?map_trainings=false"
	if err := c.do(ctx, http.MethodGet, path, authorization, nil, &user); err != nil {
		return "", err
	}
	return user.DeviceToken, nil
}

func (c *userClient) SendNotification(ctx context.Context, userID, authorization string, notification Notification) error {
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID), authorization, notification, nil)
}
