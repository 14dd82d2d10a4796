package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSMSGateway posts messages to a JSON SMS gateway:
//
//	POST <url>  {"to": "...", "message": "...", "sender_id": "..."}
//	X-API-Key: <key>
//
// The gateway answers {"status": "success"|..., "message_id": "...", "message": "..."}.
// Anything other than a 2xx with status "success" is a failed delivery.
type HTTPSMSGateway struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewHTTPSMSGateway(url, apiKey, senderID string, timeout time.Duration) *HTTPSMSGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSMSGateway{
		url:      url,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: timeout},
	}
}

type smsRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id,omitempty"`
}

type smsResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

func (g *HTTPSMSGateway) SendSMS(ctx context.Context, to, body string) (DeliveryResult, error) {
	payload, err := json.Marshal(smsRequest{To: to, Message: body, SenderID: g.senderID})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return DeliveryResult{ProviderStatus: "timeout"}, fmt.Errorf("sms gateway timeout: %w", err)
		}
		return DeliveryResult{ProviderStatus: "unreachable"}, fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out smsResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)
		}
		return DeliveryResult{ProviderStatus: fmt.Sprintf("http_%d", resp.StatusCode)},
			&DeliveryError{Provider: "sms", Status: fmt.Sprintf("http_%d", resp.StatusCode), Message: msg}
	}

	res := DeliveryResult{ProviderStatus: out.Status, MessageID: out.MessageID}
	if out.Status != "success" {
		if res.ProviderStatus == "" {
			res.ProviderStatus = "unknown"
		}
		return res, &DeliveryError{Provider: "sms", Status: res.ProviderStatus, Message: out.Message}
	}
	return res, nil
}
