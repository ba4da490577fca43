package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"renal-risk-stream/internal/risk"
)

// Notification carries one fused assessment worth alerting on.
type Notification struct {
	StreamID      uuid.UUID
	At            time.Time
	FinalRisk     risk.Level
	Previous      risk.Level
	Score         *float64
	Strategy      string
	Summary       string
	UrgentActions string
	Readings      []risk.Reading
	AdditionalMsg string
}

// Notifier defines an alert delivery channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("stream_id", note.StreamID.String()).
		Stringer("final_risk", note.FinalRisk).
		Msg("alert sent (telegram)")
	return nil
}

// LogNotifier writes alerts to the log. It stands in when no delivery
// channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the notification at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().Str("stream_id", note.StreamID.String()).
		Stringer("final_risk", note.FinalRisk).
		Stringer("previous", note.Previous).
		Str("summary", note.Summary).
		Msg("risk alert")
	return nil
}

// Multi fans a notification out to every channel and joins their errors.
type Multi []Notifier

// Notify delivers to all channels even when some fail.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Renal Risk %s] %s\n", note.FinalRisk, note.FinalRisk.Badge()))
	builder.WriteString(fmt.Sprintf("Stream: %s\n", note.StreamID))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	if note.Previous != note.FinalRisk {
		builder.WriteString(fmt.Sprintf("Change: %s -> %s\n", note.Previous, note.FinalRisk))
	}
	if note.Score != nil {
		builder.WriteString(fmt.Sprintf("Score: %.2f (%s)\n", *note.Score, note.Strategy))
	} else if note.Strategy != "" {
		builder.WriteString(fmt.Sprintf("Strategy: %s\n", note.Strategy))
	}
	for _, r := range note.Readings {
		builder.WriteString(fmt.Sprintf("- %s: %s\n", r.Signal, r.Explanation))
	}
	if note.Summary != "" {
		builder.WriteString(note.Summary + "\n")
	}
	if note.UrgentActions != "" {
		builder.WriteString(fmt.Sprintf("Actions: %s\n", note.UrgentActions))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
