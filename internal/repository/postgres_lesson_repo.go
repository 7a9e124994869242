package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/coursegpt/coursegpt/internal/model"
)

// PostgresLessonRepo はPostgreSQLを使用したレッスンリポジトリ。
// 配列フィールドはJSONBカラムに保存する。
type PostgresLessonRepo struct {
	db *sql.DB
}

// NewPostgresLessonRepo はPostgresLessonRepoを生成する。
func NewPostgresLessonRepo(db *sql.DB) *PostgresLessonRepo {
	return &PostgresLessonRepo{db: db}
}

const lessonColumns = `id, title, description, learning_outcomes, key_terms, examples, content, created_at, updated_at`

func scanLesson(s rowScanner) (*model.Lesson, error) {
	l := &model.Lesson{}
	var outcomes, keyTerms, examples, content []byte
	if err := s.Scan(
		&l.ID, &l.Title, &l.Description,
		&outcomes, &keyTerms, &examples, &content,
		&l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw  []byte
		dest any
	}{
		{outcomes, &l.LearningOutcomes},
		{keyTerms, &l.KeyTerms},
		{examples, &l.Examples},
		{content, &l.Content},
	} {
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, fmt.Errorf("failed to decode lesson %s: %w", l.ID, err)
		}
	}
	fillEmptyLessonFields(l)
	return l, nil
}

// fillEmptyLessonFields はnullで保存された配列フィールドを空配列に置き換える。
func fillEmptyLessonFields(l *model.Lesson) {
	if l.LearningOutcomes == nil {
		l.LearningOutcomes = []string{}
	}
	if l.KeyTerms == nil {
		l.KeyTerms = []model.KeyTerm{}
	}
	if l.Examples == nil {
		l.Examples = []string{}
	}
	if l.Content == nil {
		l.Content = []model.ContentSection{}
	}
}

// jsonbParam はJSONBカラムに渡すパラメータを生成する。
func jsonbParam(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode jsonb value: %w", err)
	}
	return string(b), nil
}

// FindByID は指定IDのレッスンを取得する。見つからない場合はnilを返す。
func (r *PostgresLessonRepo) FindByID(ctx context.Context, id string) (*model.Lesson, error) {
	l, err := scanLesson(r.db.QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lesson by ID: %w", err)
	}
	return l, nil
}

// FindByIDs は指定IDのレッスンをまとめて取得する。
func (r *PostgresLessonRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Lesson, error) {
	if len(ids) == 0 {
		return []*model.Lesson{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = ANY($1)`, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	lessons := []*model.Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lessons: %w", err)
	}
	return lessons, nil
}

// Create はレッスンを作成する。
func (r *PostgresLessonRepo) Create(ctx context.Context, l *model.Lesson) error {
	fillEmptyLessonFields(l)

	params := make([]string, 0, 4)
	for _, v := range []any{l.LearningOutcomes, l.KeyTerms, l.Examples, l.Content} {
		p, err := jsonbParam(v)
		if err != nil {
			return err
		}
		params = append(params, p)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lessons (id, title, description, learning_outcomes, key_terms, examples, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9)`,
		l.ID, l.Title, l.Description,
		params[0], params[1], params[2], params[3],
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lesson: %w", err)
	}
	return nil
}

// Update はパッチで指定されたフィールドだけをSET句に含めて更新する。
// 見つからない場合はnilを返す。
func (r *PostgresLessonRepo) Update(ctx context.Context, id string, patch model.LessonPatch, updatedAt time.Time) (*model.Lesson, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, updatedAt}

	addText := func(column string, v string) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addJSON := func(column string, v any) error {
		p, err := jsonbParam(v)
		if err != nil {
			return err
		}
		args = append(args, p)
		sets = append(sets, fmt.Sprintf("%s = $%d::jsonb", column, len(args)))
		return nil
	}

	if patch.Title != nil {
		addText("title", *patch.Title)
	}
	if patch.Description != nil {
		addText("description", *patch.Description)
	}
	if patch.LearningOutcomes != nil {
		if err := addJSON("learning_outcomes", nonNil(*patch.LearningOutcomes)); err != nil {
			return nil, err
		}
	}
	if patch.KeyTerms != nil {
		keyTerms := *patch.KeyTerms
		if keyTerms == nil {
			keyTerms = []model.KeyTerm{}
		}
		if err := addJSON("key_terms", keyTerms); err != nil {
			return nil, err
		}
	}
	if patch.Examples != nil {
		if err := addJSON("examples", nonNil(*patch.Examples)); err != nil {
			return nil, err
		}
	}
	if patch.Content != nil {
		content := *patch.Content
		if content == nil {
			content = []model.ContentSection{}
		}
		if err := addJSON("content", content); err != nil {
			return nil, err
		}
	}

	l, err := scanLesson(r.db.QueryRowContext(ctx,
		`UPDATE lessons SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+lessonColumns,
		args...,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update lesson: %w", err)
	}
	return l, nil
}

// Delete は指定IDのレッスンを削除する。
func (r *PostgresLessonRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}
	return requireAffected(result)
}

// DeleteByIDs は指定IDのレッスンをまとめて削除する。
func (r *PostgresLessonRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete lessons: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ LessonRepository = (*PostgresLessonRepo)(nil)
