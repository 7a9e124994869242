package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coursegpt/coursegpt/internal/model"
)

// ModuleServiceInterface はモジュールハンドラーが必要とするサービスインターフェース。
type ModuleServiceInterface interface {
	CreateModule(ctx context.Context, name, ownerID string) (*model.Module, error)
	ListModulesForUser(ctx context.Context, ownerID string) (*model.User, []*model.Module, error)
	GetModule(ctx context.Context, moduleID string) (*model.Module, error)
	DeleteModule(ctx context.Context, moduleID string) error
	ListLessonsForModule(ctx context.Context, moduleID string) ([]*model.Lesson, error)
}

// ModuleHandler はモジュール管理のHTTPハンドラー。
type ModuleHandler struct {
	service ModuleServiceInterface
}

// NewModuleHandler はModuleHandlerを生成する。
func NewModuleHandler(service ModuleServiceInterface) *ModuleHandler {
	return &ModuleHandler{
		service: service,
	}
}

// createModuleRequest はモジュール作成リクエストのボディ。
type createModuleRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	UserID string `json:"userId" validate:"required"`
}

// userModulesResponse はモジュールを展開したユーザー情報のAPIレスポンス。
type userModulesResponse struct {
	DocumentID string          `json:"_id"`
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	Modules    []*model.Module `json:"modules"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// CreateModule はモジュールを作成し、所有ユーザーのモジュール一覧に追加する。
// POST /api/modules
func (h *ModuleHandler) CreateModule(w http.ResponseWriter, r *http.Request) {
	var req createModuleRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	module, err := h.service.CreateModule(r.Context(), req.Name, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, module)
}

// ListModulesForUser はユーザーとそのモジュールを作成順に返す。
// GET /api/modules/user/{userId}
func (h *ModuleHandler) ListModulesForUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	user, modules, err := h.service.ListModulesForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userModulesResponse{
		DocumentID: user.ID,
		ID:         user.ID,
		Email:      user.Email,
		Modules:    modules,
		CreatedAt:  user.CreatedAt,
	})
}

// GetModule はモジュールを返す。
// GET /api/modules/{moduleId}
func (h *ModuleHandler) GetModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleId")

	module, err := h.service.GetModule(r.Context(), moduleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, module)
}

// DeleteModule はモジュールとそのレッスンを削除する。
// DELETE /api/modules/{moduleId}
func (h *ModuleHandler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleId")

	if err := h.service.DeleteModule(r.Context(), moduleID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Module deleted successfully",
		ID:      moduleID,
	})
}

// ListLessons はモジュールのレッスンをモジュール内の順序で返す。
// GET /api/modules/{moduleId}/lessons
func (h *ModuleHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleId")

	lessons, err := h.service.ListLessonsForModule(r.Context(), moduleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lessons)
}
