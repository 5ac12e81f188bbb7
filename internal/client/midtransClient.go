package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/model"
)

type MidtransClient interface {
	CreateSnapTransaction(ctx context.Context, baseURL, serverKey string, req *model.MidtransSnapRequest) (*model.MidtransSnapResponse, error)
}

type midtransClientImpl struct {
	httpClient *http.Client
}

func NewMidtransClient() MidtransClient {
	return &midtransClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *midtransClientImpl) CreateSnapTransaction(ctx context.Context, baseURL, serverKey string, snapReq *model.MidtransSnapRequest) (*model.MidtransSnapResponse, error) {
	body, err := json.Marshal(snapReq)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	// server key is the username, password is empty
	auth := base64.StdEncoding.EncodeToString([]byte(serverKey + ":"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read midtrans response: %w", err)
	}

	var result model.MidtransSnapResponse
	if err := json.Unmarshal(raw, &result); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("decode midtrans response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(result.ErrorMessages) > 0 {
			return nil, fmt.Errorf("midtrans error %d: %s", resp.StatusCode, strings.Join(result.ErrorMessages, "; "))
		}
		return nil, fmt.Errorf("midtrans error %d: %s", resp.StatusCode, string(raw))
	}

	if result.Token == "" {
		return nil, fmt.Errorf("midtrans response has no token")
	}

	return &result, nil
}
