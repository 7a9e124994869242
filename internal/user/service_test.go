package user

import (
	"context"
	"errors"
	"testing"

	"github.com/coursegpt/coursegpt/internal/model"
	"github.com/coursegpt/coursegpt/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
	createFn   func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) AddModule(ctx context.Context, userID, moduleID string) error { return nil }
func (m *mockUserRepo) RemoveModule(ctx context.Context, userID, moduleID string) error {
	return nil
}
func (m *mockUserRepo) RemoveModuleFromAll(ctx context.Context, moduleID string) (int64, error) {
	return 0, nil
}
func (m *mockUserRepo) ListAll(ctx context.Context) ([]*model.User, error) { return nil, nil }

// --- テスト ---

func TestCreateUser_Success(t *testing.T) {
	var saved *model.User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			saved = user
			return nil
		},
	}
	svc := NewService(repo)

	user, err := svc.CreateUser(context.Background(), "firebase-uid", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser がエラーを返した: %v", err)
	}

	if user.ID != "firebase-uid" || user.Email != "alice@example.com" {
		t.Errorf("user = %+v", user)
	}
	if user.Modules == nil || len(user.Modules) != 0 {
		t.Errorf("Modules = %#v, want empty slice", user.Modules)
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if saved != user {
		t.Error("the created user should be persisted")
	}
}

func TestCreateUser_MissingFields_ValidationError(t *testing.T) {
	tests := []struct {
		name  string
		uid   string
		email string
	}{
		{"empty uid", "", "alice@example.com"},
		{"blank uid", "   ", "alice@example.com"},
		{"empty email", "uid", ""},
		{"invalid email", "uid", "not-an-email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &mockUserRepo{
				createFn: func(ctx context.Context, user *model.User) error {
					called = true
					return nil
				},
			}
			svc := NewService(repo)

			_, err := svc.CreateUser(context.Background(), tt.uid, tt.email)
			if !model.HasCode(err, model.ErrCodeValidation) {
				t.Errorf("error = %v, want %s", err, model.ErrCodeValidation)
			}
			if called {
				t.Error("repository should not be called on validation failure")
			}
		})
	}
}

func TestCreateUser_Duplicate_ConflictError(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicate
		},
	}
	svc := NewService(repo)

	_, err := svc.CreateUser(context.Background(), "uid", "alice@example.com")
	if !model.HasCode(err, model.ErrCodeConflict) {
		t.Errorf("error = %v, want %s", err, model.ErrCodeConflict)
	}
}

func TestCreateUser_RepositoryError_Wrapped(t *testing.T) {
	dbErr := errors.New("db down")
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return dbErr
		},
	}
	svc := NewService(repo)

	_, err := svc.CreateUser(context.Background(), "uid", "alice@example.com")
	if !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped %v", err, dbErr)
	}
}
