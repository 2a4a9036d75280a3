package backend

import (
	"context"
	"fmt"
	"net/http"
)

// Notification is the wire shape shared by the list endpoint and push messages.
type Notification struct {
	ID      int64          `json:"id" validate:"required"`
	Type    string         `json:"type" validate:"required"`
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message"`
	Image   string         `json:"image,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Read    *bool          `json:"read,omitempty"`
}

func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	err := c.do(ctx, call{
		Endpoint: "GET /notifications/list/",
		Method:   http.MethodGet,
		Path:     "notifications/list/",
	}, &out)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, call{
		Endpoint: "DELETE /notifications/delete/{id}/",
		Method:   http.MethodDelete,
		Path:     fmt.Sprintf("notifications/delete/%d/", id),
	}, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, call{
		Endpoint: "POST /notifications/mark-all-read/",
		Method:   http.MethodPost,
		Path:     "notifications/mark-all-read/",
	}, nil)
}

// Validate reports whether a decoded notification carries the required fields.
func (n Notification) Validate() error {
	return validate.Struct(n)
}
