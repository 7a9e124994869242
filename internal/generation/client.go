// Package generation はテキスト生成APIを利用したレッスン下書きの生成を提供する。
// チャット補完エンドポイントの呼び出し、応答の解析、keyTermsの正規化を含む。
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/coursegpt/coursegpt/internal/lesson"
	"github.com/coursegpt/coursegpt/internal/metrics"
	"github.com/coursegpt/coursegpt/internal/model"
)

const (
	// DefaultEndpoint はMistralのチャット補完エンドポイント。
	DefaultEndpoint = "https://api.mistral.ai/v1/chat/completions"
	// DefaultModel はデフォルトで使用するモデル名。
	DefaultModel = "mistral-small-latest"

	// maxErrorBodyBytes はログに残す上流エラー応答の最大バイト数。
	maxErrorBodyBytes = 2048
)

// Config は生成クライアントの設定を表す。
type Config struct {
	APIKey        string
	Endpoint      string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	RatePerMinute int // 0以下で送信側のスロットリングを無効にする
	Prompt        PromptConfig
}

// Client はチャット補完APIを呼び出してレッスンの下書きを生成する。
// 1回の生成につき上流への呼び出しは最大1回で、リトライは行わない。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
	endpoint    string // テスト用にエンドポイントを差し替え可能
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	prompt      PromptConfig
	limiter     *rate.Limiter // nilの場合はスロットリングなし
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger, m metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	prompt := cfg.Prompt
	if prompt == (PromptConfig{}) {
		prompt = DefaultPromptConfig()
	}

	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}

	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		model:       modelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		prompt:      prompt,
		limiter:     limiter,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// upstreamStatusError は上流が2xx以外を返したことを表す。
type upstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("generation API returned status %d", e.StatusCode)
}

// GenerateDraft はトピックからレッスンの下書きを生成する。
// 空のトピックは上流を呼び出さずにValidationErrorを返す。
// 戻り値のkeyTermsは常に {term, definition} の配列に正規化されている。
func (c *Client) GenerateDraft(ctx context.Context, topic string) (*model.LessonContent, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		c.metrics.RecordGeneration(metrics.OutcomeValidation)
		return nil, model.NewValidationError("topic is required")
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn("生成APIの送信レート上限に達しました",
			slog.String("topic", topic),
		)
		c.metrics.RecordGeneration(metrics.OutcomeThrottled)
		return nil, model.NewRateLimitedError("local generation throttle exceeded; please retry later")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.complete(ctx, BuildPrompt(topic, c.prompt))
	c.metrics.RecordGenerationLatency(time.Since(start))
	if err != nil {
		return nil, c.classify(topic, err)
	}

	var raw lesson.RawLesson
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &raw); err != nil {
		c.logger.Error("生成APIの応答をJSONとして解析できませんでした",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
			slog.String("raw_text", text),
		)
		c.metrics.RecordGeneration(metrics.OutcomeParse)
		return nil, model.NewGenerationParseError(err.Error())
	}

	draft, err := lesson.Normalize(raw)
	if err != nil {
		c.logger.Warn("生成されたレッスンのkeyTermsを正規化できませんでした",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordGeneration(metrics.OutcomeNormalize)
		return nil, err
	}

	c.metrics.RecordGeneration(metrics.OutcomeSuccess)
	return &draft, nil
}

// complete はチャット補完APIを1回呼び出し、最初の選択肢の本文を返す。
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return "", &upstreamStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("チャット補完レスポンスのパースに失敗しました: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("チャット補完レスポンスに選択肢が含まれていません")
	}
	return parsed.Choices[0].Message.Content, nil
}

// classify は上流呼び出しのエラーを利用者向けのAPIErrorに変換し、ログとメトリクスを記録する。
func (c *Client) classify(topic string, err error) error {
	attrs := []any{
		slog.String("topic", topic),
		slog.String("error", err.Error()),
	}

	var statusErr *upstreamStatusError
	switch {
	case isTimeout(err):
		c.logger.Warn("生成APIの呼び出しがタイムアウトしました", attrs...)
		c.metrics.RecordGeneration(metrics.OutcomeTimeout)
		return model.NewGenerationTimeoutError()

	case errors.As(err, &statusErr):
		attrs = append(attrs,
			slog.Int("http_status", statusErr.StatusCode),
			slog.String("body", statusErr.Body),
		)
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			c.logger.Error("生成APIが認証エラーを返しました", attrs...)
			c.metrics.RecordGeneration(metrics.OutcomeUnauthorized)
			return model.NewGenerationUnauthorizedError()
		case http.StatusTooManyRequests:
			c.logger.Warn("生成APIがレート制限を返しました", attrs...)
			c.metrics.RecordGeneration(metrics.OutcomeRateLimited)
			return model.NewGenerationRateLimitedError()
		default:
			c.logger.Error("生成APIがエラーステータスを返しました", attrs...)
			c.metrics.RecordGeneration(metrics.OutcomeUpstream)
			return model.NewGenerationFailedError(fmt.Sprintf("upstream status %d", statusErr.StatusCode))
		}

	default:
		c.logger.Error("生成APIの呼び出しに失敗しました", attrs...)
		c.metrics.RecordGeneration(metrics.OutcomeUpstream)
		return model.NewGenerationFailedError("the generation service could not be reached")
	}
}

// isTimeout はエラーがタイムアウトに起因するかを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
