// Package messenger は新規投稿をメッセンジャーゲートウェイ経由で管理者へ通知する。
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sngm3741/holiday-lights/api/internal/metrics"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

const (
	channelDiscord = "discord"
	channelSlack   = "slack"

	discordAttempts = 3
	discordDelay    = 200 * time.Millisecond
)

// Failure は再送を使い切った通知の記録。
type Failure struct {
	ID           string
	SubmissionID string
	Channel      string
	Payload      string
	Error        string
	CreatedAt    time.Time
}

// FailureStore persists notifications that could not be delivered.
type FailureStore interface {
	Save(ctx context.Context, failure Failure) error
}

// Config は送信先と管理画面URL。
type Config struct {
	Endpoint           string
	DiscordDestination string
	SlackDestination   string
	AdminReviewBaseURL string
	Timeout            time.Duration
}

// Notifier は通知をリクエスト処理から切り離して送る。
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	failures   FailureStore
	metrics    metrics.Recorder
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewNotifier(cfg Config, failures FailureStore, recorder metrics.Recorder, logger *slog.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		failures:   failures,
		metrics:    recorder,
		logger:     logger,
	}
}

// NotifySubmission は呼び出し元の ctx のキャンセルを引き継がず、独自のタイムアウトで送信する。
func (n *Notifier) NotifySubmission(ctx context.Context, sub domain.Submission) {
	if strings.TrimSpace(n.cfg.DiscordDestination) == "" && strings.TrimSpace(n.cfg.SlackDestination) == "" {
		return
	}
	detached := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		// Discord の再試行と Slack 1回分が収まる長さ。
		sendCtx, cancel := context.WithTimeout(detached, n.cfg.Timeout*(discordAttempts+2))
		defer cancel()
		n.notify(sendCtx, sub)
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) notify(ctx context.Context, sub domain.Submission) {
	var discordErr, slackErr error

	if dest := strings.TrimSpace(n.cfg.DiscordDestination); dest != "" {
		discordErr = n.sendWithRetry(ctx, dest, sub.ID, buildDiscordMessage(n.cfg.AdminReviewBaseURL, sub), discordAttempts, discordDelay)
		if discordErr == nil {
			n.metrics.RecordNotification(channelDiscord, "ok")
			return
		}
		n.metrics.RecordNotification(channelDiscord, "failed")
		n.logger.Warn("discord notification failed", "submission_id", sub.ID, "error", discordErr)
	}

	if dest := strings.TrimSpace(n.cfg.SlackDestination); dest != "" {
		slackErr = n.sendWithRetry(ctx, dest, sub.ID, buildSlackMessage(n.cfg.AdminReviewBaseURL, sub), 1, 0)
		if slackErr == nil {
			n.metrics.RecordNotification(channelSlack, "ok")
			return
		}
		n.metrics.RecordNotification(channelSlack, "failed")
		n.logger.Warn("slack notification failed", "submission_id", sub.ID, "error", slackErr)
	}

	n.persistFailure(ctx, sub, errors.Join(discordErr, slackErr))
}

func (n *Notifier) persistFailure(ctx context.Context, sub domain.Submission, cause error) {
	if n.failures == nil || cause == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"submissionId": sub.ID,
		"type":         sub.Type,
		"address":      sub.Address,
		"submittedBy":  sub.SubmittedBy,
		"photos":       len(sub.Photos),
	})
	failure := Failure{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		Channel:      "admin_notification",
		Payload:      string(payload),
		Error:        cause.Error(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := n.failures.Save(ctx, failure); err != nil {
		n.logger.Error("failed to persist failed notification", "submission_id", sub.ID, "error", err)
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, destination, identifier, text string, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = n.send(ctx, destination, identifier, text); lastErr == nil {
			return nil
		}
		if i == attempts-1 || delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}

// send は POST {endpoint}/messages を1回だけ呼ぶ。
func (n *Notifier) send(ctx context.Context, destination, identifier, text string) error {
	body, err := json.Marshal(map[string]any{
		"userId":      identifier,
		"text":        text,
		"destination": destination,
	})
	if err != nil {
		return fmt.Errorf("failed to encode messenger payload: %w", err)
	}

	endpoint := strings.TrimRight(n.cfg.Endpoint, "/") + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build messenger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("messenger request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		message, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return fmt.Errorf("messenger returned status=%d body=%s", res.StatusCode, strings.TrimSpace(string(message)))
	}
	return nil
}

func submitterName(sub domain.Submission) string {
	if name := strings.TrimSpace(sub.SubmittedByName); name != "" {
		return name
	}
	return sub.SubmittedBy
}

func reviewLink(baseURL, id string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" || id == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + id
}

func buildDiscordMessage(adminBaseURL string, sub domain.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** から新しい投稿があります。\n", submitterName(sub))
	if sub.Type == domain.SubmissionPhotoUpdate {
		fmt.Fprintf(&b, "- 種別: 写真追加 (location %s)\n", sub.TargetLocationID)
	} else {
		fmt.Fprintf(&b, "- 住所: %s\n", sub.Address)
		fmt.Fprintf(&b, "- 座標: %.5f, %.5f\n", sub.Coordinates.Lat, sub.Coordinates.Lng)
	}
	fmt.Fprintf(&b, "- 写真: %d枚\n", len(sub.Photos))
	if link := reviewLink(adminBaseURL, sub.ID); link != "" {
		fmt.Fprintf(&b, "[管理画面で確認](%s)\n", link)
	}
	return b.String()
}

func buildSlackMessage(adminBaseURL string, sub domain.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":warning: %s さんから新しい投稿があります。\n", submitterName(sub))
	if sub.Type == domain.SubmissionPhotoUpdate {
		fmt.Fprintf(&b, "写真追加: %s\n", sub.TargetLocationID)
	} else {
		fmt.Fprintf(&b, "住所: %s\n", sub.Address)
	}
	if link := reviewLink(adminBaseURL, sub.ID); link != "" {
		fmt.Fprintf(&b, "管理画面: %s\n", link)
	}
	return b.String()
}
