// Package identity talks to the authentication provider's admin API, which
// owns login credentials separately from the application's relational data.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrIdentityNotFound = errors.New("identity not found")

// Metadata is stored on the identity as user metadata.
type Metadata struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Identity is the provider-side account created for an approved request.
type Identity struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Confirmed bool     `json:"-"`
	Metadata  Metadata `json:"user_metadata"`
}

// Provider creates and removes identities.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password string, metadata Metadata) (*Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

type createUserRequest struct {
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	EmailConfirm bool     `json:"email_confirm"`
	UserMetadata Metadata `json:"user_metadata"`
}

type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	UserMetadata     Metadata   `json:"user_metadata"`
}

// errorResponse covers the error shapes returned by the auth admin API.
type errorResponse struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *errorResponse) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Client is a Provider backed by the auth admin REST API.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient creates a client for baseURL authenticated with the service-role key.
// Requests are never retried: creating an identity is not idempotent.
func NewClient(baseURL, serviceKey string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/auth/v1").
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", serviceKey).
		SetAuthToken(serviceKey)

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

func (c *Client) CreateIdentity(ctx context.Context, email, password string, metadata Metadata) (*Identity, error) {
	c.logger.Info("creating identity", zap.String("email", email))

	var result userResponse
	var apiErr errorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(createUserRequest{
			Email:        email,
			Password:     password,
			EmailConfirm: true,
			UserMetadata: metadata,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/admin/users")
	if err != nil {
		c.logger.Error("identity provider call failed", zap.Error(err))
		return nil, fmt.Errorf("identity provider request failed: %w", err)
	}

	if resp.IsError() {
		msg := apiErr.text()
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Error("identity provider returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", msg),
		)
		return nil, errors.New(msg)
	}

	if result.ID == "" {
		return nil, errors.New("identity provider returned no user id")
	}

	return &Identity{
		ID:        result.ID,
		Email:     result.Email,
		Confirmed: result.EmailConfirmedAt != nil,
		Metadata:  result.UserMetadata,
	}, nil
}

func (c *Client) DeleteIdentity(ctx context.Context, id string) error {
	var apiErr errorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetError(&apiErr).
		Delete("/admin/users/{id}")
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return ErrIdentityNotFound
	}
	if resp.IsError() {
		msg := apiErr.text()
		if msg == "" {
			msg = resp.Status()
		}
		return errors.New(msg)
	}

	c.logger.Info("identity deleted", zap.String("identity_id", id))
	return nil
}
