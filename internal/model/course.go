// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// Module はユーザーが所有するレッスンのまとまりを表す。
type Module struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Lessons   []string  `json:"lessons" bson:"lessons"` // 追加順のレッスンID
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// MarshalJSON はidに加えて同じ値を_idとしても出力する。
func (m Module) MarshalJSON() ([]byte, error) {
	type plain Module
	return json.Marshal(struct {
		DocumentID string `json:"_id"`
		plain
	}{m.ID, plain(m)})
}

// KeyTerm は用語とその定義の組を表す。
type KeyTerm struct {
	Term       string `json:"term" bson:"term"`
	Definition string `json:"definition" bson:"definition"`
}

// ContentSection はサブトピックごとの本文を表す。
type ContentSection struct {
	SubTopic string `json:"subTopic" bson:"subTopic"`
	Content  string `json:"content" bson:"content"`
}

// LessonContent はレッスン本体の正規化済みフィールドを表す。
// 生成結果の下書きと永続化されたレッスンの両方で使用する。
// KeyTermsは常に順序付きの組の配列である。
type LessonContent struct {
	Title            string           `json:"title" bson:"title"`
	Description      string           `json:"description" bson:"description"`
	LearningOutcomes []string         `json:"learningOutcomes" bson:"learningOutcomes"`
	KeyTerms         []KeyTerm        `json:"keyTerms" bson:"keyTerms"`
	Examples         []string         `json:"examples" bson:"examples"`
	Content          []ContentSection `json:"content" bson:"content"`
}

// Lesson は永続化されたレッスンを表す。
type Lesson struct {
	ID            string `json:"id" bson:"_id"`
	LessonContent `bson:",inline"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}

// MarshalJSON はidに加えて同じ値を_idとしても出力する。
func (l Lesson) MarshalJSON() ([]byte, error) {
	type plain Lesson
	return json.Marshal(struct {
		DocumentID string `json:"_id"`
		plain
	}{l.ID, plain(l)})
}

// LessonPatch はレッスンの部分更新内容を表す。
// nilのフィールドは変更せず、既存の値を維持する。
type LessonPatch struct {
	Title            *string
	Description      *string
	LearningOutcomes *[]string
	KeyTerms         *[]KeyTerm
	Examples         *[]string
	Content          *[]ContentSection
}

// Apply はパッチをレッスンに浅く適用する。
// 指定されたフィールドは値全体を置き換える。
func (p LessonPatch) Apply(l *Lesson) {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.LearningOutcomes != nil {
		l.LearningOutcomes = *p.LearningOutcomes
	}
	if p.KeyTerms != nil {
		l.KeyTerms = *p.KeyTerms
	}
	if p.Examples != nil {
		l.Examples = *p.Examples
	}
	if p.Content != nil {
		l.Content = *p.Content
	}
}
