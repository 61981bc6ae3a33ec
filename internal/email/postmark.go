package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

// Client sends transactional mail through Postmark.
type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at a different Postmark-compatible endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

// Message tags, used to split delivery stats in Postmark.
const (
	TagSignIn    = "sign-in"
	TagOrderLink = "order-link"
)

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream"`
}

// APIError is a rejection reported by Postmark.
type APIError struct {
	Status    int
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postmark API error: status %d code %d: %s", e.Status, e.ErrorCode, e.Message)
}

// SendMagicLink mails a one-time sign-in link carrying token.
func (c *Client) SendMagicLink(ctx context.Context, toEmail, token string) error {
	link := fmt.Sprintf("%s/login/verify?token=%s", c.baseURL, url.QueryEscape(token))
	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Tag:      TagSignIn,
		Subject:  "Your sign-in link",
		TextBody: fmt.Sprintf("Click the link below to sign in:\n\n%s\n\nThis link expires in 15 minutes and can be used once.", link),
		HtmlBody: fmt.Sprintf(`<p>Click the link below to sign in:</p><p><a href="%s">Sign in</a></p><p>This link expires in 15 minutes and can be used once.</p>`, html.EscapeString(link)),
	})
}

// SendOrderLink mails the owner of an order a link that opens it signed in.
func (c *Client) SendOrderLink(ctx context.Context, toEmail, orderPublicID, link string) error {
	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Tag:      TagOrderLink,
		Subject:  fmt.Sprintf("Your order %s", orderPublicID),
		TextBody: fmt.Sprintf("View your order:\n\n%s", link),
		HtmlBody: fmt.Sprintf(`<p>View your order:</p><p><a href="%s">Open order</a></p>`, html.EscapeString(link)),
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}
	payload.From = c.fromEmail
	payload.MessageStream = "outbound"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(apiErr)
		return apiErr
	}

	return nil
}
