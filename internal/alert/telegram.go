package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/config"
	"net-scout/internal/model"
)

// TelegramNotifier pushes newly recorded alerts to a Telegram chat.
// Disabled notifiers accept alerts silently.
type TelegramNotifier struct {
	botToken  string
	chatID    string
	parseMode string
	enabled   bool
	client    *http.Client
	logger    *logrus.Logger
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *logrus.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:  cfg.BotToken,
		chatID:    cfg.ChatID,
		parseMode: cfg.ParseMode,
		enabled:   cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SendAlert implements Notifier interface - sends alert to Telegram
func (tn *TelegramNotifier) SendAlert(alert model.Alert) error {
	if !tn.enabled {
		return nil
	}

	text := fmt.Sprintf("🚨 *net-scout alert*\nType: %s\nSource: %s\nDestination: %s\nScore: %d\nTime: %s",
		alert.AlertType,
		orDash(alert.SrcIP),
		orDash(alert.DstIP),
		alert.Score,
		alert.CreatedAt.UTC().Format(time.RFC3339))

	msg := telegramMessage{
		ChatID:    tn.chatID,
		Text:      text,
		ParseMode: tn.parseMode,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", tn.botToken)
	resp, err := tn.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	var tgResp telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		return fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !tgResp.OK {
		return fmt.Errorf("telegram API error: %s", tgResp.Description)
	}

	tn.logger.Debugf("Telegram notification sent for %s alert", alert.AlertType)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
