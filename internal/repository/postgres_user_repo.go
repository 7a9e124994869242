package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/coursegpt/coursegpt/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, module_ids, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, pq.Array(&user.Modules), &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	user.Modules = nonNil(user.Modules)
	return user, nil
}

// Create はユーザーを作成する。IDまたはメールアドレスが重複する場合はErrDuplicateを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, module_ids, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, pq.Array(nonNil(user.Modules)), user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// AddModule はユーザーのモジュール一覧の末尾にモジュールIDを追加する。
// 既に含まれている場合は変更しない。
func (r *PostgresUserRepo) AddModule(ctx context.Context, userID, moduleID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET module_ids = CASE WHEN $2 = ANY(module_ids) THEN module_ids ELSE array_append(module_ids, $2) END
		 WHERE id = $1`,
		userID, moduleID,
	)
	if err != nil {
		return fmt.Errorf("failed to add module to user: %w", err)
	}
	return requireAffected(result)
}

// RemoveModule は指定ユーザーのモジュール一覧からモジュールIDを取り除く。
func (r *PostgresUserRepo) RemoveModule(ctx context.Context, userID, moduleID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET module_ids = array_remove(module_ids, $2) WHERE id = $1`,
		userID, moduleID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove module from user: %w", err)
	}
	return nil
}

// RemoveModuleFromAll は全ユーザーのモジュール一覧からモジュールIDを取り除く。
func (r *PostgresUserRepo) RemoveModuleFromAll(ctx context.Context, moduleID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET module_ids = array_remove(module_ids, $1) WHERE $1 = ANY(module_ids)`,
		moduleID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove module from users: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListAll は全ユーザーを作成日時順に返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, module_ids, created_at FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Email, pq.Array(&u.Modules), &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Modules = nonNil(u.Modules)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// isUniqueViolation はエラーが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// requireAffected は1行も更新されなかった場合にErrNotFoundを返す。
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
