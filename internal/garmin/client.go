package garmin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gupload/cli/internal/auth"
)

const (
	DefaultSSOURL     = "https://sso.garmin.com/sso"
	DefaultConnectURL = "https://connect.garmin.com"
	DefaultTimeout    = 30 * time.Second
)

var ticketPattern = regexp.MustCompile(`ticket=([A-Za-z0-9.\-_]+)`)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Client logs in to Garmin Connect through the SSO service
type Client struct {
	SSOURL     string
	ConnectURL string
	Timeout    time.Duration
	now        func() time.Time
}

// NewClient creates a Garmin Connect client. Empty URLs fall back to the public endpoints.
func NewClient(ssoURL, connectURL string) *Client {
	if ssoURL == "" {
		ssoURL = DefaultSSOURL
	}
	if connectURL == "" {
		connectURL = DefaultConnectURL
	}
	return &Client{
		SSOURL:     strings.TrimSuffix(ssoURL, "/"),
		ConnectURL: strings.TrimSuffix(connectURL, "/"),
		Timeout:    DefaultTimeout,
		now:        time.Now,
	}
}

// Authenticate signs in with username and password and returns a session
// whose HTTP client carries the Garmin Connect cookies.
func (c *Client) Authenticate(username, password string) (*auth.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	httpClient := &http.Client{Timeout: c.Timeout, Jar: jar}

	ticket, err := c.signIn(httpClient, username, password)
	if err != nil {
		return nil, err
	}

	if err := c.exchangeTicket(httpClient, ticket); err != nil {
		return nil, err
	}

	return &auth.Session{
		ID:        uuid.NewString(),
		Ticket:    ticket,
		Client:    httpClient,
		CreatedAt: c.now(),
	}, nil
}

// signIn posts the login form and extracts the service ticket from the response
func (c *Client) signIn(httpClient *http.Client, username, password string) (string, error) {
	params := url.Values{}
	params.Set("service", c.ConnectURL+"/modern/")
	params.Set("embed", "true")

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("embed", "true")

	req, err := http.NewRequest("POST", c.SSOURL+"/signin?"+params.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", c.SSOURL)

	body, err := doRequest(httpClient, req)
	if err != nil {
		return "", fmt.Errorf("sign in failed: %w", err)
	}

	match := ticketPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("sign in failed: no service ticket in response (check username and password)")
	}

	return string(match[1]), nil
}

// exchangeTicket trades the SSO ticket for Garmin Connect session cookies
func (c *Client) exchangeTicket(httpClient *http.Client, ticket string) error {
	req, err := http.NewRequest("GET", c.ConnectURL+"/modern/?ticket="+url.QueryEscape(ticket), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if _, err := doRequest(httpClient, req); err != nil {
		return fmt.Errorf("ticket exchange failed: %w", err)
	}
	return nil
}

func doRequest(httpClient *http.Client, req *http.Request) ([]byte, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s - %s", resp.StatusCode, errResp.Error, errResp.Details)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return body, nil
}
