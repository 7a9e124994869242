package handler

import (
	"net/http"
	"testing"

	"github.com/coursegpt/coursegpt/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeNotFound, http.StatusNotFound},
		{model.ErrCodeConflict, http.StatusConflict},
		{model.ErrCodeNormalizationFailed, http.StatusInternalServerError},
		{model.ErrCodeGenerationParseFailed, http.StatusInternalServerError},
		{model.ErrCodeGenerationTimeout, http.StatusGatewayTimeout},
		{model.ErrCodeGenerationRateLimited, http.StatusTooManyRequests},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{model.ErrCodeGenerationUnauth, http.StatusUnauthorized},
		{model.ErrCodeGenerationFailed, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code}); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
