package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opskap1/temnos/pkg/scanner"
)

// HTTPVerifier submits decoded payloads to the tokens service scan endpoint,
// authenticated with the station's paired JWT.
type HTTPVerifier struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPVerifier(baseURL, stationToken string) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   stationToken,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyRequest struct {
	QRData string `json:"qr_data"`
}

func (v *HTTPVerifier) VerifyAndConsume(ctx context.Context, encodedPayload string) (*scanner.VerifyResult, error) {
	body, err := json.Marshal(verifyRequest{QRData: encodedPayload})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/scan/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify request failed with status %d", resp.StatusCode)
	}

	var result scanner.VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding verify response: %w", err)
	}
	return &result, nil
}
