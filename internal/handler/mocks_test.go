package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/coursegpt/coursegpt/internal/lesson"
	"github.com/coursegpt/coursegpt/internal/middleware"
	"github.com/coursegpt/coursegpt/internal/model"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	createUserFn func(ctx context.Context, externalID, email string) (*model.User, error)
}

func (m *mockUserService) CreateUser(ctx context.Context, externalID, email string) (*model.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, externalID, email)
	}
	return nil, nil
}

// mockModuleService はModuleServiceInterfaceのモック実装。
type mockModuleService struct {
	createModuleFn         func(ctx context.Context, name, ownerID string) (*model.Module, error)
	listModulesForUserFn   func(ctx context.Context, ownerID string) (*model.User, []*model.Module, error)
	getModuleFn            func(ctx context.Context, moduleID string) (*model.Module, error)
	deleteModuleFn         func(ctx context.Context, moduleID string) error
	listLessonsForModuleFn func(ctx context.Context, moduleID string) ([]*model.Lesson, error)
}

func (m *mockModuleService) CreateModule(ctx context.Context, name, ownerID string) (*model.Module, error) {
	if m.createModuleFn != nil {
		return m.createModuleFn(ctx, name, ownerID)
	}
	return nil, nil
}

func (m *mockModuleService) ListModulesForUser(ctx context.Context, ownerID string) (*model.User, []*model.Module, error) {
	if m.listModulesForUserFn != nil {
		return m.listModulesForUserFn(ctx, ownerID)
	}
	return nil, nil, nil
}

func (m *mockModuleService) GetModule(ctx context.Context, moduleID string) (*model.Module, error) {
	if m.getModuleFn != nil {
		return m.getModuleFn(ctx, moduleID)
	}
	return nil, nil
}

func (m *mockModuleService) DeleteModule(ctx context.Context, moduleID string) error {
	if m.deleteModuleFn != nil {
		return m.deleteModuleFn(ctx, moduleID)
	}
	return nil
}

func (m *mockModuleService) ListLessonsForModule(ctx context.Context, moduleID string) ([]*model.Lesson, error) {
	if m.listLessonsForModuleFn != nil {
		return m.listLessonsForModuleFn(ctx, moduleID)
	}
	return nil, nil
}

// mockLessonService はLessonServiceInterfaceのモック実装。
type mockLessonService struct {
	createLessonFn func(ctx context.Context, raw lesson.RawLesson, moduleID string) (*model.Lesson, error)
	updateLessonFn func(ctx context.Context, lessonID string, raw lesson.RawLessonPatch) (*model.Lesson, error)
	deleteLessonFn func(ctx context.Context, lessonID string) error
}

func (m *mockLessonService) CreateLesson(ctx context.Context, raw lesson.RawLesson, moduleID string) (*model.Lesson, error) {
	if m.createLessonFn != nil {
		return m.createLessonFn(ctx, raw, moduleID)
	}
	return nil, nil
}

func (m *mockLessonService) UpdateLesson(ctx context.Context, lessonID string, raw lesson.RawLessonPatch) (*model.Lesson, error) {
	if m.updateLessonFn != nil {
		return m.updateLessonFn(ctx, lessonID, raw)
	}
	return nil, nil
}

func (m *mockLessonService) DeleteLesson(ctx context.Context, lessonID string) error {
	if m.deleteLessonFn != nil {
		return m.deleteLessonFn(ctx, lessonID)
	}
	return nil
}

// mockGenerator はLessonGeneratorのモック実装。
type mockGenerator struct {
	generateDraftFn func(ctx context.Context, topic string) (*model.LessonContent, error)
	calls           int
}

func (m *mockGenerator) GenerateDraft(ctx context.Context, topic string) (*model.LessonContent, error) {
	m.calls++
	if m.generateDraftFn != nil {
		return m.generateDraftFn(ctx, topic)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディから統一エラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}
