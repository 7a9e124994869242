// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// User はサービス利用ユーザーを表す。
// IDは外部IdP（Firebase Authentication等）が発行したuidをそのまま使用する。
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	Modules   []string  `json:"modules" bson:"modules"` // 作成順のモジュールID。重複なし
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// HasModule はユーザーのモジュール一覧に指定IDが含まれるかを返す。
func (u *User) HasModule(moduleID string) bool {
	for _, id := range u.Modules {
		if id == moduleID {
			return true
		}
	}
	return false
}

// MarshalJSON はidに加えて同じ値を_idとしても出力する。
// フロントエンドはエンティティを_idで参照する。
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		DocumentID string `json:"_id"`
		plain
	}{u.ID, plain(u)})
}
