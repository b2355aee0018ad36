package llm

import (
	"strings"

	"kaiwabot/pkg/chattypes"
)

// basePrompt is the constructive-talk instruction set sent with every
// completion request.
const basePrompt = `あなたは建設的な対話を促進するAIアシスタントです。
以下の点に注意して返答してください：
1. 簡潔に返答してください（3-4文程度）
2. 評価や批判を避け、建設的で前向きな対話を心がけてください
3. 共感的で親しみやすい口調を維持してください
4. 必要に応じて、1つだけ掘り下げる質問をしてください
5. 不適切な内容や有害な内容は避けてください`

// BuildSystemPrompt renders the system prompt for a conversation context,
// folding in the session's configuration fields so replies track the user's
// stated topic, mood and alcohol level.
func BuildSystemPrompt(conv *chattypes.ConversationContext) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if conv == nil {
		return b.String()
	}

	if conv.Topic != "" {
		b.WriteString("\n\n現在の話題: " + conv.Topic)
	}
	if conv.Mood != "" {
		b.WriteString("\nユーザーの気分: " + conv.Mood)
	}
	switch conv.AlcoholLevel {
	case 0:
		// No drinking context to mention
	case 1:
		b.WriteString("\nユーザーは少しお酒を飲んでいます。リラックスした雰囲気で話してください。")
	default:
		b.WriteString("\nユーザーはお酒を飲んでいます。ゆっくりと優しく、話を引き出すように返答してください。")
	}

	return b.String()
}
