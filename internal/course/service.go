// Package course はモジュールとレッスンの永続化に関するドメインロジックを提供する。
// ユーザー → モジュール → レッスンの参照整合性を保ちながら作成・更新・削除を行う。
package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursegpt/coursegpt/internal/lesson"
	"github.com/coursegpt/coursegpt/internal/metrics"
	"github.com/coursegpt/coursegpt/internal/model"
	"github.com/coursegpt/coursegpt/internal/repository"
)

// Service はモジュール・レッスン管理のサービス層。
// ストレージは単一ドキュメント単位の原子的な書き込みのみを前提とし、
// 複数ドキュメントにまたがる処理は順序付けた書き込みで構成する。
type Service struct {
	users   repository.UserRepository
	modules repository.ModuleRepository
	lessons repository.LessonRepository
	metrics metrics.MetricsCollector
	now     func() time.Time
	newID   func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	modules repository.ModuleRepository,
	lessons repository.LessonRepository,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		users:   users,
		modules: modules,
		lessons: lessons,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// CreateModule はモジュールを作成し、所有ユーザーのモジュール一覧に追加する。
// 名前が空の場合はValidationError、所有ユーザーが存在しない場合はNotFoundErrorを返す。
func (s *Service) CreateModule(ctx context.Context, name, ownerID string) (*model.Module, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("module name is required")
	}
	if ownerID == "" {
		return nil, model.NewValidationError("userId is required")
	}

	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewNotFoundError("user", ownerID)
	}

	module := &model.Module{
		ID:        s.newID(),
		Name:      name,
		Lessons:   []string{},
		CreatedAt: s.now(),
	}
	if err := s.modules.Create(ctx, module); err != nil {
		return nil, fmt.Errorf("モジュールの作成に失敗しました: %w", err)
	}

	if err := s.users.AddModule(ctx, ownerID, module.ID); err != nil {
		// 所有者が途中で消えた場合は孤立モジュールを残さない
		if delErr := s.modules.Delete(ctx, module.ID); delErr != nil && !errors.Is(delErr, repository.ErrNotFound) {
			s.reportCascadeFailure("create_module", module.ID, "module", delErr)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("user", ownerID)
		}
		return nil, fmt.Errorf("ユーザーへのモジュール追加に失敗しました: %w", err)
	}

	slog.Info("モジュールを作成しました",
		slog.String("module_id", module.ID),
		slog.String("user_id", ownerID),
	)
	return module, nil
}

// ListModulesForUser はユーザーと、そのユーザーのモジュールを保存順に返す。
// 解決できないモジュールIDは整合性異常として記録し、結果から除外する。
func (s *Service) ListModulesForUser(ctx context.Context, ownerID string) (*model.User, []*model.Module, error) {
	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, nil, model.NewNotFoundError("user", ownerID)
	}

	found, err := s.modules.FindByIDs(ctx, owner.Modules)
	if err != nil {
		return nil, nil, fmt.Errorf("モジュールの取得に失敗しました: %w", err)
	}

	byID := make(map[string]*model.Module, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}

	modules := make([]*model.Module, 0, len(owner.Modules))
	for _, id := range owner.Modules {
		m, ok := byID[id]
		if !ok {
			s.reportAnomaly(metrics.AnomalyDanglingModule, "user_id", ownerID, "module_id", id)
			continue
		}
		modules = append(modules, m)
	}
	return owner, modules, nil
}

// GetModule は指定IDのモジュールを返す。
func (s *Service) GetModule(ctx context.Context, moduleID string) (*model.Module, error) {
	module, err := s.modules.FindByID(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("モジュールの取得に失敗しました: %w", err)
	}
	if module == nil {
		return nil, model.NewNotFoundError("module", moduleID)
	}
	return module, nil
}

// DeleteModule はモジュールを削除する。
// 削除順序: レッスン → モジュール → 全ユーザーのモジュール一覧からの除去
// 途中で失敗した場合はロールバックせず、部分失敗として記録してエラーを返す。
func (s *Service) DeleteModule(ctx context.Context, moduleID string) error {
	module, err := s.modules.FindByID(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("モジュールの取得に失敗しました: %w", err)
	}
	if module == nil {
		return model.NewNotFoundError("module", moduleID)
	}

	// 1. 参照しているレッスンを削除
	deleted, err := s.lessons.DeleteByIDs(ctx, module.Lessons)
	if err != nil {
		// 一括削除は一部のレッスンを消した後に失敗することがある
		s.reportCascadeFailure("delete_module", moduleID, "lessons", err)
		return fmt.Errorf("レッスンの削除に失敗しました: %w", err)
	}

	// 2. モジュールを削除
	if err := s.modules.Delete(ctx, moduleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 並行して削除された
			return model.NewNotFoundError("module", moduleID)
		}
		s.reportCascadeFailure("delete_module", moduleID, "module", err)
		return fmt.Errorf("モジュールの削除に失敗しました: %w", err)
	}

	// 3. 全ユーザーのモジュール一覧から除去
	detached, err := s.users.RemoveModuleFromAll(ctx, moduleID)
	if err != nil {
		s.reportCascadeFailure("delete_module", moduleID, "user_refs", err)
		return fmt.Errorf("ユーザーからのモジュール参照の除去に失敗しました: %w", err)
	}

	slog.Info("モジュールを削除しました",
		slog.String("module_id", moduleID),
		slog.Int64("lessons_deleted", deleted),
		slog.Int64("users_updated", detached),
	)
	return nil
}

// CreateLesson はレッスンを正規化して保存し、モジュールのレッスン一覧の末尾に追加する。
// 正規化に失敗した場合やモジュールが存在しない場合は何も保存しない。
func (s *Service) CreateLesson(ctx context.Context, raw lesson.RawLesson, moduleID string) (*model.Lesson, error) {
	if moduleID == "" {
		return nil, model.NewValidationError("moduleId is required")
	}

	content, err := lesson.Normalize(raw)
	if err != nil {
		return nil, err
	}

	module, err := s.modules.FindByID(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("モジュールの取得に失敗しました: %w", err)
	}
	if module == nil {
		return nil, model.NewNotFoundError("module", moduleID)
	}

	now := s.now()
	l := &model.Lesson{
		ID:            s.newID(),
		LessonContent: content,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.lessons.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("レッスンの作成に失敗しました: %w", err)
	}

	if err := s.modules.AppendLesson(ctx, moduleID, l.ID); err != nil {
		// モジュールへの追加に失敗したレッスンは残さない
		if delErr := s.lessons.Delete(ctx, l.ID); delErr != nil && !errors.Is(delErr, repository.ErrNotFound) {
			s.reportCascadeFailure("create_lesson", l.ID, "lesson", delErr)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("module", moduleID)
		}
		return nil, fmt.Errorf("モジュールへのレッスン追加に失敗しました: %w", err)
	}

	slog.Info("レッスンを作成しました",
		slog.String("lesson_id", l.ID),
		slog.String("module_id", moduleID),
	)
	return l, nil
}

// UpdateLesson はレッスンを部分更新し、更新後のレッスンを返す。
// 指定されたフィールドのみ値全体を置き換え、updatedAtを更新する。
func (s *Service) UpdateLesson(ctx context.Context, lessonID string, raw lesson.RawLessonPatch) (*model.Lesson, error) {
	patch, err := lesson.NormalizePatch(raw)
	if err != nil {
		return nil, err
	}

	updated, err := s.lessons.Update(ctx, lessonID, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("レッスンの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError("lesson", lessonID)
	}
	return updated, nil
}

// DeleteLesson はレッスンを削除する。
// 先に全モジュールのレッスン一覧からIDを除去し、その後レッスン本体を削除する。
func (s *Service) DeleteLesson(ctx context.Context, lessonID string) error {
	existing, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return fmt.Errorf("レッスンの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewNotFoundError("lesson", lessonID)
	}

	if _, err := s.modules.RemoveLessonFromAll(ctx, lessonID); err != nil {
		return fmt.Errorf("モジュールからのレッスン参照の除去に失敗しました: %w", err)
	}

	if err := s.lessons.Delete(ctx, lessonID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("lesson", lessonID)
		}
		s.reportCascadeFailure("delete_lesson", lessonID, "lesson", err)
		return fmt.Errorf("レッスンの削除に失敗しました: %w", err)
	}

	slog.Info("レッスンを削除しました",
		slog.String("lesson_id", lessonID),
	)
	return nil
}

// ListLessonsForModule はモジュールのレッスンをモジュール内の順序で返す。
// 解決できないレッスンIDは整合性異常として記録し、結果から除外する。
func (s *Service) ListLessonsForModule(ctx context.Context, moduleID string) ([]*model.Lesson, error) {
	module, err := s.modules.FindByID(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("モジュールの取得に失敗しました: %w", err)
	}
	if module == nil {
		return nil, model.NewNotFoundError("module", moduleID)
	}

	found, err := s.lessons.FindByIDs(ctx, module.Lessons)
	if err != nil {
		return nil, fmt.Errorf("レッスンの取得に失敗しました: %w", err)
	}

	byID := make(map[string]*model.Lesson, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}

	lessons := make([]*model.Lesson, 0, len(module.Lessons))
	for _, id := range module.Lessons {
		l, ok := byID[id]
		if !ok {
			s.reportAnomaly(metrics.AnomalyDanglingLesson, "module_id", moduleID, "lesson_id", id)
			continue
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

// reportAnomaly は解決できない参照を整合性異常として記録する。
func (s *Service) reportAnomaly(kind, ownerKey, ownerID, refKey, refID string) {
	slog.Warn("解決できない参照を検出しました",
		slog.String("kind", kind),
		slog.String(ownerKey, ownerID),
		slog.String(refKey, refID),
	)
	s.metrics.RecordConsistencyAnomaly(kind)
}

// reportCascadeFailure は複数ドキュメントにまたがる処理の部分失敗を記録する。
func (s *Service) reportCascadeFailure(operation, id, step string, err error) {
	slog.Error("カスケード処理が途中で失敗しました",
		slog.String("operation", operation),
		slog.String("id", id),
		slog.String("failed_step", step),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordCascadeFailure(operation)
}
