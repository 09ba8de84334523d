package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
)

// Telegram pushes trade events to a chat. Sends run in the background
// and never block or fail the trading loop.
type Telegram struct {
	token  string
	chatID string
	client *resty.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

func (t *Telegram) Notify(message string) {
	if t == nil || t.token == "" || t.chatID == "" {
		return
	}
	go func() {
		url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
		resp, err := t.client.R().
			SetFormData(map[string]string{
				"chat_id": t.chatID,
				"text":    message,
			}).
			Post(url)
		if err != nil {
			log.Warn().Err(err).Msg("telegram send failed")
			return
		}
		if resp.IsError() {
			log.Warn().Int("status", resp.StatusCode()).Msg("telegram send rejected")
		}
	}()
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string) {}

var (
	_ port.Notifier = (*Telegram)(nil)
	_ port.Notifier = Nop{}
)
