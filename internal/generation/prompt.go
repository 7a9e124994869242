package generation

import (
	"fmt"
	"strings"
)

// PromptConfig はプロンプトで要求する各要素の量を表す。
// 各値は "2-3" のような範囲表記の文字列で指定する。
type PromptConfig struct {
	DescriptionSentences string
	LearningOutcomes     string
	KeyTerms             string
	Examples             string
	SubTopics            string
	SubTopicWords        string
}

// DefaultPromptConfig はデフォルトのプロンプト設定を返す。
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		DescriptionSentences: "2-3",
		LearningOutcomes:     "3-4",
		KeyTerms:             "3-5",
		Examples:             "2-3",
		SubTopics:            "5-6",
		SubTopicWords:        "150-300",
	}
}

// lessonShape は生成APIに返させるJSONの構造。
const lessonShape = `{
  "title": "string",
  "description": "string",
  "learningOutcomes": ["string", "string", "string"],
  "keyTerms": [
    {
      "term": "string",
      "definition": "string"
    }
  ],
  "examples": ["string", "string"],
  "content": [{"subTopic": "string", "content": "string"}]
}`

// BuildPrompt はトピックに対するレッスン生成プロンプトを組み立てる。
func BuildPrompt(topic string, cfg PromptConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a structured lesson about %s. Return a JSON object with the following structure:\n", topic)
	b.WriteString(lessonShape)
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("- Title should be concise and descriptive\n")
	fmt.Fprintf(&b, "- Description should be %s sentences\n", cfg.DescriptionSentences)
	fmt.Fprintf(&b, "- Include %s learning outcomes as bullet points\n", cfg.LearningOutcomes)
	fmt.Fprintf(&b, "- Include %s key terms with their definitions\n", cfg.KeyTerms)
	fmt.Fprintf(&b, "- Provide %s practical examples if applicable, if not give %s facts about the topic.\n", cfg.Examples, cfg.Examples)
	fmt.Fprintf(&b, "- Include necessary subtopics (%s) with their content (%s words) to teach all the learning objectives.\n", cfg.SubTopics, cfg.SubTopicWords)
	b.WriteString("\nReturn ONLY the JSON object, without any markdown formatting or additional text.")
	return b.String()
}
