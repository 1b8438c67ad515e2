package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"turnero/internal/config"
	"turnero/internal/models"
)

const SignatureHeader = "X-Turnero-Signature"

// WebhookNotifier posts notices as JSON to an external email/SMS gateway.
// It accepts every non-telegram contact, so it goes last in a Router.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookBody struct {
	Event  string                     `json:"event"`
	Text   string                     `json:"text"`
	Notice *models.CancellationNotice `json:"notice"`
}

func (n *WebhookNotifier) Supports(contact string) bool {
	return n.url != "" && contact != "" && !strings.HasPrefix(contact, telegramScheme)
}

func (n *WebhookNotifier) NotifyCancellation(ctx context.Context, notice *models.CancellationNotice) error {
	body, err := json.Marshal(webhookBody{
		Event:  "appointment.cancelled",
		Text:   CancellationText(notice),
		Notice: notice,
	})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
