package handler

import (
	"context"
	"net/http"

	"github.com/coursegpt/coursegpt/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// CreateUser は外部IdPのuidとメールアドレスからユーザーを作成する。
	CreateUser(ctx context.Context, externalID, email string) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// createUserRequest はユーザー作成リクエストのボディ。
// フロントエンドはIdPのユーザー情報を user キーの下に入れて送信する。
type createUserRequest struct {
	User *struct {
		UID   string `json:"uid" validate:"required"`
		Email string `json:"email" validate:"required,email"`
	} `json:"user" validate:"required"`
}

// CreateUser はユーザーを作成する。
// POST /api/create-user
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.User.UID, req.User.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
