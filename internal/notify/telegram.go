package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clearform/photo-upscaler/pkg/schema"
)

// Telegram posts messages straight to the Bot API, so notifications work on
// any machine running the service.
type Telegram struct {
	BotToken string
	ChatID   string
	BaseURL  string // overridable for tests; defaults to the public API
	Client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  "https://api.telegram.org",
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Telegram) Send(ctx context.Context, message string, _ schema.BatchDone) error {
	token := strings.TrimSpace(t.BotToken)
	chatID := strings.TrimSpace(t.ChatID)
	if token == "" || chatID == "" {
		return fmt.Errorf("telegram not configured")
	}

	form := url.Values{"chat_id": {chatID}, "text": {message}}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !payload.OK {
		return fmt.Errorf("telegram rejected message (status %s)", resp.Status)
	}
	return nil
}
