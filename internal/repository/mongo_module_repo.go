package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/coursegpt/coursegpt/internal/model"
)

// MongoModuleRepo はMongoDBを使用したモジュールリポジトリ。
type MongoModuleRepo struct {
	coll *mongo.Collection
}

// NewMongoModuleRepo はMongoModuleRepoを生成する。
func NewMongoModuleRepo(coll *mongo.Collection) *MongoModuleRepo {
	return &MongoModuleRepo{coll: coll}
}

// FindByID は指定IDのモジュールを取得する。見つからない場合はnilを返す。
func (r *MongoModuleRepo) FindByID(ctx context.Context, id string) (*model.Module, error) {
	m := &model.Module{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find module by ID: %w", err)
	}
	m.Lessons = nonNil(m.Lessons)
	return m, nil
}

// FindByIDs は指定IDのモジュールをまとめて取得する。
func (r *MongoModuleRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Module, error) {
	if len(ids) == 0 {
		return []*model.Module{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// Create はモジュールを作成する。
func (r *MongoModuleRepo) Create(ctx context.Context, m *model.Module) error {
	m.Lessons = nonNil(m.Lessons)
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("failed to insert module: %w", err)
	}
	return nil
}

// Delete は指定IDのモジュールを削除する。
func (r *MongoModuleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendLesson はレッスンIDを$pushで末尾に追加する。
func (r *MongoModuleRepo) AppendLesson(ctx context.Context, moduleID, lessonID string) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": moduleID},
		bson.M{"$push": bson.M{"lessons": lessonID}},
	)
	if err != nil {
		return fmt.Errorf("failed to append lesson to module: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveLesson は指定モジュールのレッスン一覧からレッスンIDを$pullで取り除く。
func (r *MongoModuleRepo) RemoveLesson(ctx context.Context, moduleID, lessonID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": moduleID},
		bson.M{"$pull": bson.M{"lessons": lessonID}},
	)
	if err != nil {
		return fmt.Errorf("failed to remove lesson from module: %w", err)
	}
	return nil
}

// RemoveLessonFromAll は全モジュールのレッスン一覧からレッスンIDを取り除く。
func (r *MongoModuleRepo) RemoveLessonFromAll(ctx context.Context, lessonID string) (int64, error) {
	result, err := r.coll.UpdateMany(ctx,
		bson.M{"lessons": lessonID},
		bson.M{"$pull": bson.M{"lessons": lessonID}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove lesson from modules: %w", err)
	}
	return result.ModifiedCount, nil
}

// ListAll は全モジュールを作成日時順に返す。
func (r *MongoModuleRepo) ListAll(ctx context.Context) ([]*model.Module, error) {
	return r.find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	)
}

func (r *MongoModuleRepo) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*model.Module, error) {
	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}

	modules := []*model.Module{}
	if err := cursor.All(ctx, &modules); err != nil {
		return nil, fmt.Errorf("failed to decode modules: %w", err)
	}
	for _, m := range modules {
		m.Lessons = nonNil(m.Lessons)
	}
	return modules, nil
}

// compile-time interface check
var _ ModuleRepository = (*MongoModuleRepo)(nil)
