// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coursegpt/coursegpt/internal/middleware"
	"github.com/coursegpt/coursegpt/internal/model"
)

// maxRequestBodyBytes はリクエストボディの上限サイズ。
// 生成されたレッスン全体を保存する場合でも十分に収まる大きさにしている。
const maxRequestBodyBytes = 1 << 20

// messageResponse は削除系エンドポイントのレスポンス。
type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSONBody はリクエストボディをdstにデコードする。
// ボディが空、JSONとして不正、またはサイズ上限を超える場合はValidationErrorを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apiErr := model.NewValidationError("invalid request body")
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			apiErr.Details = "request body is empty"
		case errors.As(err, &maxErr):
			apiErr.Details = "request body is too large"
		default:
			apiErr.Details = err.Error()
		}
		return apiErr
	}
	return nil
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層のエラーを適切なHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeConflict:
		return http.StatusConflict
	case model.ErrCodeGenerationTimeout:
		return http.StatusGatewayTimeout
	case model.ErrCodeGenerationRateLimited, model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeGenerationUnauth:
		return http.StatusUnauthorized
	case model.ErrCodeNormalizationFailed, model.ErrCodeGenerationParseFailed, model.ErrCodeGenerationFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
