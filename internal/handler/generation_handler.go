package handler

import (
	"context"
	"net/http"

	"github.com/coursegpt/coursegpt/internal/model"
)

// LessonGenerator はトピックからレッスンの下書きを生成する。
type LessonGenerator interface {
	GenerateDraft(ctx context.Context, topic string) (*model.LessonContent, error)
}

// GenerationHandler はレッスン生成のHTTPハンドラー。
type GenerationHandler struct {
	generator LessonGenerator
}

// NewGenerationHandler はGenerationHandlerを生成する。
func NewGenerationHandler(generator LessonGenerator) *GenerationHandler {
	return &GenerationHandler{
		generator: generator,
	}
}

// generateLessonRequest はレッスン生成リクエストのボディ。
// 空白のみのトピックはジェネレーター側で検証する。
type generateLessonRequest struct {
	Topic string `json:"topic" validate:"required,max=500"`
}

// GenerateLesson はトピックからレッスンの下書きを生成して返す。
// 下書きは保存しない。
// POST /api/gpt/generate-lesson
func (h *GenerationHandler) GenerateLesson(w http.ResponseWriter, r *http.Request) {
	var req generateLessonRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	draft, err := h.generator.GenerateDraft(r.Context(), req.Topic)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, draft)
}
