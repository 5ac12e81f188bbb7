package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/model"
)

// PaypalCredentials come from the PaymentMethod row of the order being paid,
// so every call carries its own.
type PaypalCredentials struct {
	BaseApiURL   string
	ClientID     string
	ClientSecret string
}

type PaypalClient interface {
	CreateOrder(ctx context.Context, creds PaypalCredentials, req *model.PaypalCreateOrderRequest) (*model.PaypalOrderResult, error)
	CaptureOrder(ctx context.Context, creds PaypalCredentials, paypalOrderID string) (*model.PaypalOrderResult, error)
	VerifyWebhookSignature(ctx context.Context, creds PaypalCredentials, req *model.PaypalVerifySignatureRequest) (bool, error)
}

type paypalClientImpl struct {
	httpClient *http.Client
}

func NewPaypalClient() PaypalClient {
	return &paypalClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *paypalClientImpl) getAccessToken(ctx context.Context, creds PaypalCredentials) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(creds.ClientID + ":" + creds.ClientSecret),
	)

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.BaseApiURL+"/v1/oauth2/token",
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("paypal oauth error %d: %s", resp.StatusCode, string(b))
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode paypal token: %w", err)
	}

	return res.AccessToken, nil
}

func (c *paypalClientImpl) doJSON(ctx context.Context, creds PaypalCredentials, method, path string, payload any, out any) error {
	accessToken, err := c.getAccessToken(ctx, creds)
	if err != nil {
		return fmt.Errorf("get paypal access token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, creds.BaseApiURL+path, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("paypal error %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode paypal response: %w", err)
	}
	return nil
}

func (c *paypalClientImpl) CreateOrder(ctx context.Context, creds PaypalCredentials, req *model.PaypalCreateOrderRequest) (*model.PaypalOrderResult, error) {
	var result model.PaypalOrderResult
	if err := c.doJSON(ctx, creds, http.MethodPost, "/v2/checkout/orders", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *paypalClientImpl) CaptureOrder(ctx context.Context, creds PaypalCredentials, paypalOrderID string) (*model.PaypalOrderResult, error) {
	var result model.PaypalOrderResult
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(paypalOrderID))
	if err := c.doJSON(ctx, creds, http.MethodPost, path, nil, &result); err != nil {
		return nil, fmt.Errorf("paypal capture: %w", err)
	}
	return &result, nil
}

func (c *paypalClientImpl) VerifyWebhookSignature(ctx context.Context, creds PaypalCredentials, req *model.PaypalVerifySignatureRequest) (bool, error) {
	payload := struct {
		*model.PaypalVerifySignatureRequest
		WebhookEvent json.RawMessage `json:"webhook_event"`
	}{
		PaypalVerifySignatureRequest: req,
		WebhookEvent:                 json.RawMessage(req.WebhookEvent),
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.doJSON(ctx, creds, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &result); err != nil {
		return false, fmt.Errorf("paypal verify webhook: %w", err)
	}
	return result.VerificationStatus == "SUCCESS", nil
}

// ApproveURL picks the link the buyer is sent to: the one whose rel is "approve".
func ApproveURL(links []model.PaypalLink) string {
	for _, link := range links {
		if link.Rel == "approve" {
			return link.Href
		}
	}
	return ""
}
