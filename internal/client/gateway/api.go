package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
)

// Typed wrappers over Request for the endpoints the sync core needs.

func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	env, err := c.Request(ctx, "/login", Options{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return "", err
	}
	if env.Offline {
		// Login is a credential exchange, not a cacheable read.
		return "", fmt.Errorf("login: %w", errOfflinePlaceholder)
	}
	if env.Data.Token == "" {
		return "", fmt.Errorf("login: server response carried no token")
	}
	return env.Data.Token, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	_, err := c.Request(ctx, "/register", Options{
		Method: http.MethodPost,
		Body:   map[string]string{"name": name, "email": email, "password": password},
	})
	return err
}

// ListStories pulls the server-side product records. The returned envelope
// may be a synthetic offline placeholder (Offline == true, empty list).
func (c *Client) ListStories(ctx context.Context) (*models.Envelope, error) {
	return c.Request(ctx, "/stories", Options{Auth: true})
}

// CreateStory pushes one record as multipart/form-data and returns the
// server-assigned id.
func (c *Client) CreateStory(ctx context.Context, name, description string, photo []byte, lat, lon *float64) (string, error) {
	fields := map[string]string{
		"name":        name,
		"description": description,
	}
	if lat != nil {
		fields["lat"] = strconv.FormatFloat(*lat, 'f', -1, 64)
	}
	if lon != nil {
		fields["lon"] = strconv.FormatFloat(*lon, 'f', -1, 64)
	}

	env, err := c.Request(ctx, "/stories", Options{
		Method: http.MethodPost,
		Multipart: &Multipart{
			Fields:    fields,
			FileField: "photo",
			FileName:  "photo.jpg",
			File:      photo,
		},
		Auth: true,
	})
	if err != nil {
		return "", err
	}
	if env.Data.ID == "" {
		return "", fmt.Errorf("create story: server response carried no id")
	}
	return env.Data.ID, nil
}

func (c *Client) UpdateStory(ctx context.Context, serverID string, patch models.ProductPatch) error {
	_, err := c.Request(ctx, "/stories/"+serverID, Options{
		Method: http.MethodPut,
		Body:   patch,
		Auth:   true,
	})
	return err
}

func (c *Client) DeleteStory(ctx context.Context, serverID string) error {
	_, err := c.Request(ctx, "/stories/"+serverID, Options{
		Method: http.MethodDelete,
		Auth:   true,
	})
	return err
}

// Ping probes server reachability. Used by the connectivity watcher; it
// deliberately bypasses the offline short-circuit in Request.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/stories", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("ping: server returned %d", resp.StatusCode)
	}
	return nil
}
