package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/coursegpt/coursegpt/internal/model"
)

// MongoLessonRepo はMongoDBを使用したレッスンリポジトリ。
type MongoLessonRepo struct {
	coll *mongo.Collection
}

// NewMongoLessonRepo はMongoLessonRepoを生成する。
func NewMongoLessonRepo(coll *mongo.Collection) *MongoLessonRepo {
	return &MongoLessonRepo{coll: coll}
}

// FindByID は指定IDのレッスンを取得する。見つからない場合はnilを返す。
func (r *MongoLessonRepo) FindByID(ctx context.Context, id string) (*model.Lesson, error) {
	l := &model.Lesson{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lesson by ID: %w", err)
	}
	fillEmptyLessonFields(l)
	return l, nil
}

// FindByIDs は指定IDのレッスンをまとめて取得する。
func (r *MongoLessonRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Lesson, error) {
	if len(ids) == 0 {
		return []*model.Lesson{}, nil
	}

	cursor, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	lessons := []*model.Lesson{}
	if err := cursor.All(ctx, &lessons); err != nil {
		return nil, fmt.Errorf("failed to decode lessons: %w", err)
	}
	for _, l := range lessons {
		fillEmptyLessonFields(l)
	}
	return lessons, nil
}

// Create はレッスンを作成する。
func (r *MongoLessonRepo) Create(ctx context.Context, l *model.Lesson) error {
	fillEmptyLessonFields(l)
	if _, err := r.coll.InsertOne(ctx, l); err != nil {
		return fmt.Errorf("failed to insert lesson: %w", err)
	}
	return nil
}

// Update はパッチで指定されたフィールドを$setで置き換え、更新後のドキュメントを返す。
// 見つからない場合はnilを返す。
func (r *MongoLessonRepo) Update(ctx context.Context, id string, patch model.LessonPatch, updatedAt time.Time) (*model.Lesson, error) {
	set := bson.M{"updatedAt": updatedAt}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.LearningOutcomes != nil {
		set["learningOutcomes"] = nonNil(*patch.LearningOutcomes)
	}
	if patch.KeyTerms != nil {
		keyTerms := *patch.KeyTerms
		if keyTerms == nil {
			keyTerms = []model.KeyTerm{}
		}
		set["keyTerms"] = keyTerms
	}
	if patch.Examples != nil {
		set["examples"] = nonNil(*patch.Examples)
	}
	if patch.Content != nil {
		content := *patch.Content
		if content == nil {
			content = []model.ContentSection{}
		}
		set["content"] = content
	}

	l := &model.Lesson{}
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update lesson: %w", err)
	}
	fillEmptyLessonFields(l)
	return l, nil
}

// Delete は指定IDのレッスンを削除する。
func (r *MongoLessonRepo) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByIDs は指定IDのレッスンをまとめて削除する。
func (r *MongoLessonRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete lessons: %w", err)
	}
	return result.DeletedCount, nil
}

// compile-time interface check
var _ LessonRepository = (*MongoLessonRepo)(nil)
