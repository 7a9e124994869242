// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/coursegpt/coursegpt/internal/model"
	"github.com/coursegpt/coursegpt/internal/repository"
)

// Service はユーザー管理のサービス層。
// 外部IdPでのサインイン後に呼ばれるユーザー登録と参照を提供する。
type Service struct {
	userRepo repository.UserRepository
	validate *validator.Validate
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser はIdPが発行したuidとメールアドレスでユーザーを作成する。
// どちらかが空、またはメールアドレスの形式が不正な場合はValidationErrorを返す。
// uidまたはメールアドレスが既に登録されている場合はConflictErrorを返す。
func (s *Service) CreateUser(ctx context.Context, externalID, email string) (*model.User, error) {
	externalID = strings.TrimSpace(externalID)
	email = strings.TrimSpace(email)

	if externalID == "" || email == "" {
		return nil, model.NewValidationError("uid and email are required")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return nil, model.NewValidationError("email must be a valid email")
	}

	user := &model.User{
		ID:        externalID,
		Email:     email,
		Modules:   []string{},
		CreatedAt: s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("user already exists")
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", user.ID),
	)
	return user, nil
}
