package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDBのコレクション名
const (
	UsersCollection   = "users"
	ModulesCollection = "modules"
	LessonsCollection = "lessons"
)

// ConnectMongo はMongoDBに接続し、指定データベースのハンドルを返す。
// 接続後にプライマリへのPingで疎通を確認する。
func ConnectMongo(ctx context.Context, uri, dbName string, timeout time.Duration) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, client.Database(dbName), nil
}

// EnsureIndexes はコレクションのインデックスを作成する。
// 既に存在するインデックスは作成されないため、何度実行してもよい。
//   - users.email: 一意
//   - users.modules / modules.lessons: 参照除去（$pull）対象の検索用
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
		{
			Keys:    bson.D{{Key: "modules", Value: 1}},
			Options: options.Index().SetName("idx_users_modules"),
		},
	}); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	if _, err := db.Collection(ModulesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "lessons", Value: 1}},
		Options: options.Index().SetName("idx_modules_lessons"),
	}); err != nil {
		return fmt.Errorf("failed to create module indexes: %w", err)
	}

	return nil
}
