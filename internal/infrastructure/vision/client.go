// Package vision は写真解析サービスの HTTP クライアント。
// モデル自体には関与せず、{tags, description, displayQuality, isValidDisplay} の出力契約だけを扱う。
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

const (
	maxImageBytes = 10 << 20
	attempts      = 3
	retryDelay    = 500 * time.Millisecond
)

var (
	// ErrNotConfigured は VISION_ENDPOINT が未設定の場合に返る。
	ErrNotConfigured = errors.New("vision endpoint is not configured")
	errTransport     = errors.New("vision request failed")
)

// StatusError は解析サービスが 2xx 以外を返した場合のエラー。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vision service returned status=%d body=%s", e.StatusCode, e.Body)
}

// Client calls the analysis endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Image     string `json:"image"`
	MediaType string `json:"mediaType"`
}

type analyzeResponse struct {
	Tags           []string `json:"tags"`
	Description    string   `json:"description"`
	DisplayQuality string   `json:"displayQuality"`
	IsValidDisplay bool     `json:"isValidDisplay"`
}

// Analyze は画像を送り、解析結果を返す。429 と 5xx、ネットワークエラーは再試行する。
// 未知の displayQuality は空として扱う。
func (c *Client) Analyze(ctx context.Context, image io.Reader, mediaType string) (admindomain.AnalysisResult, error) {
	if c.endpoint == "" {
		return admindomain.AnalysisResult{}, ErrNotConfigured
	}
	data, err := io.ReadAll(io.LimitReader(image, maxImageBytes+1))
	if err != nil {
		return admindomain.AnalysisResult{}, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return admindomain.AnalysisResult{}, errors.New("image exceeds size limit")
	}
	body, err := json.Marshal(analyzeRequest{
		Image:     base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
	})
	if err != nil {
		return admindomain.AnalysisResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var decoded analyzeResponse
	err = apperror.Retry(ctx, attempts, retryDelay, IsRetryable, func(ctx context.Context) error {
		return c.post(ctx, body, &decoded)
	})
	if err != nil {
		return admindomain.AnalysisResult{}, err
	}

	quality, err := admindomain.NewDisplayQuality(decoded.DisplayQuality)
	if err != nil {
		quality = admindomain.QualityUnknown
	}
	return admindomain.AnalysisResult{
		Tags:           decoded.Tags,
		Description:    strings.TrimSpace(decoded.Description),
		DisplayQuality: quality,
		IsValidDisplay: decoded.IsValidDisplay,
	}, nil
}

func (c *Client) post(ctx context.Context, body []byte, out *analyzeResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(res.Body, 1<<12))
		return &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(message))}
	}
	*out = analyzeResponse{}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode vision response: %w", err)
	}
	return nil
}

// IsRetryable は 429・5xx・タイムアウトを含む通信エラーを再試行対象とする。
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return errors.Is(err, errTransport)
}
