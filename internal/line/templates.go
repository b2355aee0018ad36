package line

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// NewAlcoholLevelTemplate builds the flex bubble asking the user to pick an
// alcohol level. Each button posts back "alcohol_<level>".
func NewAlcoholLevelTemplate() *linebot.FlexMessage {
	bubble := &linebot.BubbleContainer{
		Type:   linebot.FlexContainerTypeBubble,
		Header: headerBox("お酒レベルを教えてください"),
		Body: &linebot.BoxComponent{
			Type:    linebot.FlexComponentTypeBox,
			Layout:  linebot.FlexBoxLayoutTypeVertical,
			Spacing: linebot.FlexComponentSpacingTypeMd,
			Contents: []linebot.FlexComponent{
				alcoholButton(0, "飲んでいない", "🚫"),
				alcoholButton(1, "少し飲んだ", "🍺"),
				alcoholButton(2, "まあまあ飲んだ", "🍺🍺"),
				alcoholButton(3, "かなり飲んだ", "🍺🍺🍺"),
			},
		},
	}
	return linebot.NewFlexMessage("お酒レベルを選択してください", bubble)
}

// NewTopicTemplate builds the flex bubble asking the user to pick a topic.
// Each button posts back "topic_<name>".
func NewTopicTemplate() *linebot.FlexMessage {
	bubble := &linebot.BubbleContainer{
		Type:   linebot.FlexContainerTypeBubble,
		Header: headerBox("どんな話題でお話ししましょうか？"),
		Body: &linebot.BoxComponent{
			Type:    linebot.FlexComponentTypeBox,
			Layout:  linebot.FlexBoxLayoutTypeVertical,
			Spacing: linebot.FlexComponentSpacingTypeMd,
			Contents: []linebot.FlexComponent{
				topicButton("work", "仕事の話", "💼"),
				topicButton("hobby", "趣味の話", "🎨"),
				topicButton("romance", "恋愛の話", "💕"),
				topicButton("other", "その他", "💭"),
			},
		},
	}
	return linebot.NewFlexMessage("話題を選んでください", bubble)
}

// NewSessionEndTemplate builds the session-end summary bubble with the
// conversation duration and message count, plus a restart button.
func NewSessionEndTemplate(durationMinutes int, messageCount int) *linebot.FlexMessage {
	bubble := &linebot.BubbleContainer{
		Type:   linebot.FlexContainerTypeBubble,
		Header: headerBox("会話の記録"),
		Body: &linebot.BoxComponent{
			Type:    linebot.FlexComponentTypeBox,
			Layout:  linebot.FlexBoxLayoutTypeVertical,
			Spacing: linebot.FlexComponentSpacingTypeMd,
			Contents: []linebot.FlexComponent{
				&linebot.TextComponent{
					Type: linebot.FlexComponentTypeText,
					Text: fmt.Sprintf("会話時間: %d分", durationMinutes),
				},
				&linebot.TextComponent{
					Type: linebot.FlexComponentTypeText,
					Text: fmt.Sprintf("メッセージ数: %d件", messageCount),
				},
				&linebot.TextComponent{
					Type: linebot.FlexComponentTypeText,
					Text: "続けて記録が送られます。保存しておくと、次回その記録から会話を再開できます。",
					Wrap: true,
					Size: linebot.FlexTextSizeTypeSm,
				},
			},
		},
		Footer: &linebot.BoxComponent{
			Type:   linebot.FlexComponentTypeBox,
			Layout: linebot.FlexBoxLayoutTypeVertical,
			Contents: []linebot.FlexComponent{
				postbackButton("新しい会話を始める", "start_conversation"),
			},
		},
	}
	return linebot.NewFlexMessage("会話が終了しました", bubble)
}

func headerBox(title string) *linebot.BoxComponent {
	return &linebot.BoxComponent{
		Type:   linebot.FlexComponentTypeBox,
		Layout: linebot.FlexBoxLayoutTypeVertical,
		Contents: []linebot.FlexComponent{
			&linebot.TextComponent{
				Type:   linebot.FlexComponentTypeText,
				Text:   title,
				Weight: linebot.FlexTextWeightTypeBold,
				Size:   linebot.FlexTextSizeTypeLg,
				Wrap:   true,
			},
		},
	}
}

func alcoholButton(level int, label, emoji string) *linebot.ButtonComponent {
	return postbackButton(
		fmt.Sprintf("%s %s", emoji, label),
		fmt.Sprintf("alcohol_%d", level),
	)
}

func topicButton(topic, label, emoji string) *linebot.ButtonComponent {
	return postbackButton(
		fmt.Sprintf("%s %s", emoji, label),
		"topic_"+topic,
	)
}

func postbackButton(label, data string) *linebot.ButtonComponent {
	return &linebot.ButtonComponent{
		Type:   linebot.FlexComponentTypeButton,
		Style:  linebot.FlexButtonStyleTypePrimary,
		Height: linebot.FlexButtonHeightTypeSm,
		Action: linebot.NewPostbackAction(label, data, "", label, "", ""),
	}
}
