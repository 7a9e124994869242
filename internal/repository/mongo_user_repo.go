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

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
// モジュール参照は配列フィールドで保持し、$addToSet / $pull で更新する。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(coll *mongo.Collection) *MongoUserRepo {
	return &MongoUserRepo{coll: coll}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	user.Modules = nonNil(user.Modules)
	return user, nil
}

// Create はユーザーを作成する。_idまたはemailの一意インデックスに違反した場合はErrDuplicateを返す。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	user.Modules = nonNil(user.Modules)
	_, err := r.coll.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// AddModule はモジュールIDを$addToSetで追加する。
func (r *MongoUserRepo) AddModule(ctx context.Context, userID, moduleID string) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"modules": moduleID}},
	)
	if err != nil {
		return fmt.Errorf("failed to add module to user: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveModule は指定ユーザーのモジュール一覧からモジュールIDを$pullで取り除く。
func (r *MongoUserRepo) RemoveModule(ctx context.Context, userID, moduleID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"modules": moduleID}},
	)
	if err != nil {
		return fmt.Errorf("failed to remove module from user: %w", err)
	}
	return nil
}

// RemoveModuleFromAll は全ユーザーのモジュール一覧からモジュールIDを取り除く。
func (r *MongoUserRepo) RemoveModuleFromAll(ctx context.Context, moduleID string) (int64, error) {
	result, err := r.coll.UpdateMany(ctx,
		bson.M{"modules": moduleID},
		bson.M{"$pull": bson.M{"modules": moduleID}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove module from users: %w", err)
	}
	return result.ModifiedCount, nil
}

// ListAll は全ユーザーを作成日時順に返す。
func (r *MongoUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	cursor, err := r.coll.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var users []*model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, u := range users {
		u.Modules = nonNil(u.Modules)
	}
	return users, nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
