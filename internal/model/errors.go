// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// クライアントには {error, details} として返す。
type APIError struct {
	Code     string // エラーコード
	Message  string // 利用者向けのエラーメッセージ
	Details  string // 原因の補足。内部情報（生成APIの生テキスト等）は含めない
	Category string // カテゴリ: validation, not_found, conflict, lesson, generation, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeConflict              = "CONFLICT"
	ErrCodeNormalizationFailed   = "NORMALIZATION_FAILED"
	ErrCodeGenerationParseFailed = "GENERATION_PARSE_FAILED"
	ErrCodeGenerationTimeout     = "GENERATION_TIMEOUT"
	ErrCodeGenerationRateLimited = "GENERATION_RATE_LIMITED"
	ErrCodeGenerationUnauth      = "GENERATION_UNAUTHORIZED"
	ErrCodeGenerationFailed      = "GENERATION_FAILED"
	ErrCodeRateLimited           = "RATE_LIMITED"
)

// NewValidationError は必須入力の欠落や不正な入力に対するエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewNotFoundError は参照先が存在しない場合のエラーを生成する。
// kindには "user"、"module"、"lesson" などを指定する。
func NewNotFoundError(kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found", kind),
		Details:  fmt.Sprintf("%s id: %s", kind, id),
		Category: "not_found",
	}
}

// NewConflictError は一意制約違反のエラーを生成する。
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  message,
		Category: "conflict",
	}
}

// NewNormalizationError はkeyTermsの形式が不正な場合のエラーを生成する。
// detailsには受け取った形式の説明を含める。
func NewNormalizationError(details string) *APIError {
	return &APIError{
		Code:     ErrCodeNormalizationFailed,
		Message:  "invalid keyTerms format",
		Details:  details,
		Category: "lesson",
	}
}

// NewGenerationParseError は生成APIの応答がJSONとして解析できない場合のエラーを生成する。
func NewGenerationParseError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeGenerationParseFailed,
		Message:  "Failed to parse lesson content",
		Details:  reason,
		Category: "generation",
	}
}

// NewGenerationTimeoutError は生成APIの呼び出しがタイムアウトした場合のエラーを生成する。
func NewGenerationTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationTimeout,
		Message:  "Lesson generation timed out",
		Details:  "the generation service did not respond in time; please retry",
		Category: "generation",
	}
}

// NewGenerationRateLimitedError は生成APIのレート制限に達した場合のエラーを生成する。
func NewGenerationRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationRateLimited,
		Message:  "Lesson generation is rate limited",
		Details:  "too many generation requests; please retry later",
		Category: "generation",
	}
}

// NewGenerationUnauthorizedError は生成APIが認証エラーを返した場合のエラーを生成する。
func NewGenerationUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationUnauth,
		Message:  "Lesson generation is not authorized",
		Details:  "the generation service rejected the configured credentials",
		Category: "generation",
	}
}

// NewGenerationFailedError はその他の理由で生成に失敗した場合のエラーを生成する。
func NewGenerationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeGenerationFailed,
		Message:  "Failed to generate lesson content",
		Details:  reason,
		Category: "generation",
	}
}

// NewRateLimitedError はこのサーバー自身のレート制限で要求を拒否した場合のエラーを生成する。
// 上流のレート制限（GENERATION_RATE_LIMITED）とは区別する。
func NewRateLimitedError(details string) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Details:  details,
		Category: "system",
	}
}

// HasCode はerrがAPIErrorであり、指定したエラーコードを持つかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
