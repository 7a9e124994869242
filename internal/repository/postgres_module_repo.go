package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/coursegpt/coursegpt/internal/model"
)

// PostgresModuleRepo はPostgreSQLを使用したモジュールリポジトリ。
// レッスン参照はTEXT[]カラムで保持し、追加・除去は配列関数による単一UPDATEで行う。
type PostgresModuleRepo struct {
	db *sql.DB
}

// NewPostgresModuleRepo はPostgresModuleRepoを生成する。
func NewPostgresModuleRepo(db *sql.DB) *PostgresModuleRepo {
	return &PostgresModuleRepo{db: db}
}

const moduleColumns = `id, name, lesson_ids, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(s rowScanner) (*model.Module, error) {
	m := &model.Module{}
	if err := s.Scan(&m.ID, &m.Name, pq.Array(&m.Lessons), &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Lessons = nonNil(m.Lessons)
	return m, nil
}

// FindByID は指定IDのモジュールを取得する。見つからない場合はnilを返す。
func (r *PostgresModuleRepo) FindByID(ctx context.Context, id string) (*model.Module, error) {
	m, err := scanModule(r.db.QueryRowContext(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find module by ID: %w", err)
	}
	return m, nil
}

// FindByIDs は指定IDのモジュールをまとめて取得する。
func (r *PostgresModuleRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Module, error) {
	if len(ids) == 0 {
		return []*model.Module{}, nil
	}
	return r.query(ctx, `SELECT `+moduleColumns+` FROM modules WHERE id = ANY($1)`, pq.Array(ids))
}

// Create はモジュールを作成する。
func (r *PostgresModuleRepo) Create(ctx context.Context, m *model.Module) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO modules (id, name, lesson_ids, created_at) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Name, pq.Array(nonNil(m.Lessons)), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert module: %w", err)
	}
	return nil
}

// Delete は指定IDのモジュールを削除する。
func (r *PostgresModuleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	return requireAffected(result)
}

// AppendLesson はレッスンIDをモジュールのレッスン一覧の末尾に追加する。
func (r *PostgresModuleRepo) AppendLesson(ctx context.Context, moduleID, lessonID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE modules SET lesson_ids = array_append(lesson_ids, $2) WHERE id = $1`,
		moduleID, lessonID,
	)
	if err != nil {
		return fmt.Errorf("failed to append lesson to module: %w", err)
	}
	return requireAffected(result)
}

// RemoveLesson は指定モジュールのレッスン一覧からレッスンIDを取り除く。
func (r *PostgresModuleRepo) RemoveLesson(ctx context.Context, moduleID, lessonID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE modules SET lesson_ids = array_remove(lesson_ids, $2) WHERE id = $1`,
		moduleID, lessonID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove lesson from module: %w", err)
	}
	return nil
}

// RemoveLessonFromAll は全モジュールのレッスン一覧からレッスンIDを取り除く。
func (r *PostgresModuleRepo) RemoveLessonFromAll(ctx context.Context, lessonID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE modules SET lesson_ids = array_remove(lesson_ids, $1) WHERE $1 = ANY(lesson_ids)`,
		lessonID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove lesson from modules: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListAll は全モジュールを作成日時順に返す。
func (r *PostgresModuleRepo) ListAll(ctx context.Context) ([]*model.Module, error) {
	return r.query(ctx, `SELECT `+moduleColumns+` FROM modules ORDER BY created_at, id`)
}

func (r *PostgresModuleRepo) query(ctx context.Context, query string, args ...any) ([]*model.Module, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	modules := []*model.Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate modules: %w", err)
	}
	return modules, nil
}

// compile-time interface check
var _ ModuleRepository = (*PostgresModuleRepo)(nil)
