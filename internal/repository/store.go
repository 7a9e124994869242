package repository

import (
	"database/sql"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/coursegpt/coursegpt/internal/database"
)

// Store はユーザー・モジュール・レッスンの各リポジトリをまとめたもの。
type Store struct {
	Users   UserRepository
	Modules ModuleRepository
	Lessons LessonRepository
}

// NewPostgresStore はPostgreSQL実装のStoreを生成する。
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Users:   NewPostgresUserRepo(db),
		Modules: NewPostgresModuleRepo(db),
		Lessons: NewPostgresLessonRepo(db),
	}
}

// NewMongoStore はMongoDB実装のStoreを生成する。
func NewMongoStore(db *mongo.Database) *Store {
	return &Store{
		Users:   NewMongoUserRepo(db.Collection(database.UsersCollection)),
		Modules: NewMongoModuleRepo(db.Collection(database.ModulesCollection)),
		Lessons: NewMongoLessonRepo(db.Collection(database.LessonsCollection)),
	}
}
