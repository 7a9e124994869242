// Package repository はデータ永続化のインターフェースと実装を定義する。
// PostgreSQL実装とMongoDB実装は同じインターフェースを満たし、設定で切り替える。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/coursegpt/coursegpt/internal/model"
)

var (
	// ErrNotFound は更新・削除対象のドキュメントが存在しないことを表す。
	// 取得系メソッドは見つからない場合にnilを返し、このエラーは使用しない。
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate は一意制約（ユーザーID、メールアドレス）に違反したことを表す。
	ErrDuplicate = errors.New("duplicate key")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。IDまたはメールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// AddModule はユーザーのモジュール一覧の末尾にモジュールIDを追加する。
	// 既に含まれている場合は何もしない。ユーザーが存在しない場合はErrNotFoundを返す。
	AddModule(ctx context.Context, userID, moduleID string) error

	// RemoveModule は指定ユーザーのモジュール一覧からモジュールIDを取り除く。
	RemoveModule(ctx context.Context, userID, moduleID string) error

	// RemoveModuleFromAll は全ユーザーのモジュール一覧からモジュールIDを取り除き、更新件数を返す。
	RemoveModuleFromAll(ctx context.Context, moduleID string) (int64, error)

	// ListAll は全ユーザーを返す。整合性スイープで使用する。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// ModuleRepository はモジュールデータの永続化インターフェース。
type ModuleRepository interface {
	// FindByID は指定IDのモジュールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Module, error)

	// FindByIDs は指定IDのモジュールをまとめて取得する。
	// 存在しないIDは結果に含まれない。結果の順序は保証しない。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Module, error)

	// Create はモジュールを作成する。
	Create(ctx context.Context, module *model.Module) error

	// Delete は指定IDのモジュールを削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// AppendLesson はモジュールのレッスン一覧の末尾にレッスンIDを原子的に追加する。
	// モジュールが存在しない場合はErrNotFoundを返す。
	AppendLesson(ctx context.Context, moduleID, lessonID string) error

	// RemoveLesson は指定モジュールのレッスン一覧からレッスンIDを取り除く。
	RemoveLesson(ctx context.Context, moduleID, lessonID string) error

	// RemoveLessonFromAll は全モジュールのレッスン一覧からレッスンIDを取り除き、更新件数を返す。
	RemoveLessonFromAll(ctx context.Context, lessonID string) (int64, error)

	// ListAll は全モジュールを返す。整合性スイープで使用する。
	ListAll(ctx context.Context) ([]*model.Module, error)
}

// LessonRepository はレッスンデータの永続化インターフェース。
type LessonRepository interface {
	// FindByID は指定IDのレッスンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Lesson, error)

	// FindByIDs は指定IDのレッスンをまとめて取得する。
	// 存在しないIDは結果に含まれない。結果の順序は保証しない。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Lesson, error)

	// Create はレッスンを作成する。
	Create(ctx context.Context, lesson *model.Lesson) error

	// Update はパッチで指定されたフィールドを置き換え、更新後のレッスンを返す。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id string, patch model.LessonPatch, updatedAt time.Time) (*model.Lesson, error)

	// Delete は指定IDのレッスンを削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// DeleteByIDs は指定IDのレッスンをまとめて削除し、削除件数を返す。
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// nonNil はnilスライスを空スライスに置き換える。
// MongoDBではnilがnullとして保存され、配列演算子が適用できなくなるため書き込み前に使用する。
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
