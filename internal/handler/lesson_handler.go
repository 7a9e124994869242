package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coursegpt/coursegpt/internal/lesson"
	"github.com/coursegpt/coursegpt/internal/model"
)

// LessonServiceInterface はレッスンハンドラーが必要とするサービスインターフェース。
type LessonServiceInterface interface {
	CreateLesson(ctx context.Context, raw lesson.RawLesson, moduleID string) (*model.Lesson, error)
	UpdateLesson(ctx context.Context, lessonID string, raw lesson.RawLessonPatch) (*model.Lesson, error)
	DeleteLesson(ctx context.Context, lessonID string) error
}

// LessonHandler はレッスン管理のHTTPハンドラー。
type LessonHandler struct {
	service LessonServiceInterface
}

// NewLessonHandler はLessonHandlerを生成する。
func NewLessonHandler(service LessonServiceInterface) *LessonHandler {
	return &LessonHandler{
		service: service,
	}
}

// createLessonRequest はレッスン作成リクエストのボディ。
// lessonは生成APIの下書きをそのまま受け取るため、keyTermsはどちらの形でもよい。
type createLessonRequest struct {
	Lesson   *lesson.RawLesson `json:"lesson" validate:"required"`
	ModuleID string            `json:"moduleId" validate:"required"`
}

// CreateLesson はレッスンを保存し、モジュールに追加する。
// POST /api/lessons
func (h *LessonHandler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	var req createLessonRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	created, err := h.service.CreateLesson(r.Context(), *req.Lesson, req.ModuleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// AddLessonToModule はパスで指定したモジュールにレッスンを保存・追加する。
// ボディはレッスン本体そのもので、keyTermsはどちらの形でもよい。
// POST /api/modules/{moduleId}/lessons
func (h *LessonHandler) AddLessonToModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleId")

	var raw lesson.RawLesson
	if apiErr := decodeJSONBody(w, r, &raw); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	created, err := h.service.CreateLesson(r.Context(), raw, moduleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateLesson はレッスンを部分更新する。
// PUT /api/lessons/{lessonId}
func (h *LessonHandler) UpdateLesson(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "lessonId")

	var patch lesson.RawLessonPatch
	if apiErr := decodeJSONBody(w, r, &patch); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	updated, err := h.service.UpdateLesson(r.Context(), lessonID, patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteLesson はレッスンを削除し、全モジュールから参照を取り除く。
// DELETE /api/lessons/{lessonId}
func (h *LessonHandler) DeleteLesson(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "lessonId")

	if err := h.service.DeleteLesson(r.Context(), lessonID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Lesson deleted successfully",
		ID:      lessonID,
	})
}
