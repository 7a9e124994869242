// Package lesson はレッスンデータの正規化を提供する。
// 生成APIの出力やクライアントの編集内容を、永続化・API応答に使う正規形へ変換する。
package lesson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/coursegpt/coursegpt/internal/model"
)

// RawLesson は正規化前のレッスンデータを表す。
// keyTermsは配列・オブジェクトのどちらの形でも受け取れるよう未デコードのまま保持する。
// その他のフィールドは型どおりにデコードし、値には手を加えない。
type RawLesson struct {
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	LearningOutcomes []string               `json:"learningOutcomes"`
	KeyTerms         json.RawMessage        `json:"keyTerms,omitempty"`
	Examples         []string               `json:"examples"`
	Content          []model.ContentSection `json:"content"`
}

// RawLessonPatch は正規化前の部分更新データを表す。
// キーが省略されたフィールドはnil（KeyTermsは長さ0）になる。
type RawLessonPatch struct {
	Title            *string                 `json:"title"`
	Description      *string                 `json:"description"`
	LearningOutcomes *[]string               `json:"learningOutcomes"`
	KeyTerms         json.RawMessage         `json:"keyTerms,omitempty"`
	Examples         *[]string               `json:"examples"`
	Content          *[]model.ContentSection `json:"content"`
}

// Normalize は生のレッスンデータを正規形に変換する。
// 副作用はなく、自身の出力を再度渡しても結果は変わらない。
// keyTermsの形式が不正な場合はNormalizationErrorを返す。
func Normalize(raw RawLesson) (model.LessonContent, error) {
	keyTerms, err := NormalizeKeyTerms(raw.KeyTerms)
	if err != nil {
		return model.LessonContent{}, err
	}

	return model.LessonContent{
		Title:            raw.Title,
		Description:      raw.Description,
		LearningOutcomes: nonNilStrings(raw.LearningOutcomes),
		KeyTerms:         keyTerms,
		Examples:         nonNilStrings(raw.Examples),
		Content:          nonNilSections(raw.Content),
	}, nil
}

// NormalizePatch は部分更新データを正規化する。
// keyTermsは指定された場合のみ正規化し、明示的なnullは空配列として扱う。
func NormalizePatch(raw RawLessonPatch) (model.LessonPatch, error) {
	patch := model.LessonPatch{
		Title:            raw.Title,
		Description:      raw.Description,
		LearningOutcomes: raw.LearningOutcomes,
		Examples:         raw.Examples,
		Content:          raw.Content,
	}

	if len(raw.KeyTerms) > 0 {
		keyTerms, err := NormalizeKeyTerms(raw.KeyTerms)
		if err != nil {
			return model.LessonPatch{}, err
		}
		patch.KeyTerms = &keyTerms
	}

	return patch, nil
}

// NormalizeKeyTerms はkeyTermsを {term, definition} の順序付き配列に変換する。
//
//   - 未指定またはnull: 空配列
//   - {term, definition} オブジェクトの配列: そのまま
//   - term → definition のオブジェクト: ドキュメント上の出現順で配列に変換
//   - それ以外: NormalizationError
func NormalizeKeyTerms(raw json.RawMessage) ([]model.KeyTerm, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []model.KeyTerm{}, nil
	}

	switch trimmed[0] {
	case '[':
		return keyTermsFromArray(trimmed)
	case '{':
		return keyTermsFromMapping(trimmed)
	default:
		return nil, model.NewNormalizationError(
			fmt.Sprintf("keyTerms must be an array of {term, definition} or an object, got %s", describeJSON(trimmed)),
		)
	}
}

// keyTermsFromArray は {term, definition} オブジェクトの配列を検証して変換する。
func keyTermsFromArray(raw []byte) ([]model.KeyTerm, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, model.NewNormalizationError(fmt.Sprintf("keyTerms array is malformed: %v", err))
	}

	terms := make([]model.KeyTerm, 0, len(elems))
	for i, elem := range elems {
		term, ok := decodePair(elem)
		if !ok {
			return nil, model.NewNormalizationError(
				fmt.Sprintf("keyTerms[%d] must be an object with string term and definition, got %s", i, describeJSON(bytes.TrimSpace(elem))),
			)
		}
		terms = append(terms, term)
	}
	return terms, nil
}

// decodePair は配列要素が {term, definition} の組であればKeyTermとして返す。
func decodePair(elem json.RawMessage) (model.KeyTerm, bool) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return model.KeyTerm{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return model.KeyTerm{}, false
	}

	var term model.KeyTerm
	rawTerm, ok := fields["term"]
	if !ok || json.Unmarshal(rawTerm, &term.Term) != nil || isNull(rawTerm) {
		return model.KeyTerm{}, false
	}
	rawDef, ok := fields["definition"]
	if !ok || json.Unmarshal(rawDef, &term.Definition) != nil || isNull(rawDef) {
		return model.KeyTerm{}, false
	}
	return term, true
}

// keyTermsFromMapping は term → definition のオブジェクトを出現順に配列へ変換する。
// encoding/jsonのmapはキー順序を保持しないため、トークン単位で読み進める。
// 同じキーが複数回現れた場合は最初の位置に最後の値を残す。
func keyTermsFromMapping(raw []byte) ([]model.KeyTerm, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	if _, err := dec.Token(); err != nil {
		return nil, model.NewNormalizationError(fmt.Sprintf("keyTerms object is malformed: %v", err))
	}

	terms := []model.KeyTerm{}
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, model.NewNormalizationError(fmt.Sprintf("keyTerms object is malformed: %v", err))
		}
		key, ok := tok.(string)
		if !ok {
			return nil, model.NewNormalizationError("keyTerms object has a non-string key")
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, model.NewNormalizationError(fmt.Sprintf("keyTerms object is malformed: %v", err))
		}
		var definition string
		if isNull(value) || json.Unmarshal(value, &definition) != nil {
			return nil, model.NewNormalizationError(
				fmt.Sprintf("definition for key term %q must be a string, got %s", key, describeJSON(bytes.TrimSpace(value))),
			)
		}

		if i, seen := index[key]; seen {
			terms[i].Definition = definition
			continue
		}
		index[key] = len(terms)
		terms = append(terms, model.KeyTerm{Term: key, Definition: definition})
	}

	// 閉じ括弧
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, model.NewNormalizationError(fmt.Sprintf("keyTerms object is malformed: %v", err))
	}
	return terms, nil
}

// describeJSON はJSON値の種別を返す。エラー詳細の表示用。
func describeJSON(raw []byte) string {
	if len(raw) == 0 {
		return "empty value"
	}
	switch raw[0] {
	case '"':
		return "string"
	case '[':
		return "array"
	case '{':
		return "object"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSections(s []model.ContentSection) []model.ContentSection {
	if s == nil {
		return []model.ContentSection{}
	}
	return s
}
