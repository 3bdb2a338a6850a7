package cabservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/accessiride/internal/models"
)

// ContactRequest is the body of the call/email initiation endpoints.
type ContactRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	CabCompany  string `json:"cab_company"`
	To          string `json:"to"`
}

// CallbackRequest asks the dispatcher to call the rider back.
type CallbackRequest struct {
	ToNumber    *string `json:"to_number"`
	ToEmail     *string `json:"to_email"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	UserName    string  `json:"user_name"`
	UserPhone   string  `json:"user_phone"`
	CabCompany  string  `json:"cab_company"`
}

// Status is the structured answer of the status endpoint. Absent fields
// stay nil.
type Status struct {
	CorrectDispatcher  *bool   `json:"correct_dispatcher"`
	TaxiAvailable      *bool   `json:"taxi_available"`
	EarliestPickupTime *string `json:"earliest_pickup_time"`
	EstimatedFare      *Fare   `json:"estimated_fare"`
}

// Fare accepts both JSON numbers and numeric strings.
type Fare float64

func (f *Fare) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil {
		return fmt.Errorf("estimated_fare: %w", err)
	}
	*f = Fare(v)
	return nil
}

// Client talks to the accessible-cab contact service: it places the bot
// call or email, reports conversation status and files callback requests.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{Timeout: timeout}}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	// the service sits behind an ngrok tunnel in some deployments
	req.Header.Set("ngrok-skip-browser-warning", "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// parseBody decodes a JSON object. ok is false when the body is not JSON;
// an empty body decodes to an empty object.
func parseBody(resp *http.Response) (map[string]json.RawMessage, []byte, bool, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]json.RawMessage{}, raw, true, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, false, nil
	}
	return out, raw, true, nil
}

func stringField(m map[string]json.RawMessage, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// Initiate starts the bot conversation with a provider. The returned
// tracking id is empty when the service did not hand one out.
func (c *Client) Initiate(ctx context.Context, ch models.Channel, body ContactRequest) (string, error) {
	path := "/call_cab"
	if ch == models.ChannelEmail {
		path = "/email_cab"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	m, _, ok, err := parseBody(resp)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	if id := stringField(m, "CallSid"); id != "" {
		return id, nil
	}
	return stringField(m, "thread_id"), nil
}

// Status fetches the conversation status. A nil Status with a nil error
// means the service answered with something that is not JSON; JSON that
// is not an object yields an empty Status.
func (c *Client) Status(ctx context.Context, ch models.Channel, trackingID string) (*Status, error) {
	if trackingID == "" {
		return nil, nil
	}
	param := "CallSid"
	if ch == models.ChannelEmail {
		param = "thread_id"
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/status?"+param+"="+url.QueryEscape(trackingID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, raw, ok, err := parseBody(resp)
	if err != nil {
		return nil, err
	}
	if !ok {
		if json.Valid(raw) {
			// arrays and scalars carry no status fields yet
			return &Status{}, nil
		}
		return nil, nil
	}
	var st Status
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, nil
		}
	}
	return &st, nil
}

// RequestCallback files a one-shot callback request. Non-2xx answers are
// returned as errors carrying the service's reason.
func (c *Client) RequestCallback(ctx context.Context, body CallbackRequest) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/request-callback", body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	reason := ""
	if m, _, ok, _ := parseBody(resp); ok {
		reason = stringField(m, "error")
	}
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	if reason == "" {
		reason = "Unknown error"
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, reason)
}
