// Package codec maps a conversation context to and from its archive
// document: a markdown session record whose machine-parseable metadata block
// is embedded inside HTML comment markers, followed by a human-readable
// rendering of the same data. Only the metadata block is ever parsed back,
// so the prose half can never become a second source of truth.
package codec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kaiwabot/pkg/chattypes"
)

// DocumentTitle heads every archive document. Together with the metadata
// marker it is how inbound messages are recognized as restore requests.
const DocumentTitle = "# 会話セッション記録"

const (
	metadataOpen  = "<!--\nsession_metadata:\n"
	metadataClose = "\n-->"
)

// ErrMalformedDocument is returned when the metadata delimiter markers are
// absent from a document handed to Decode.
var ErrMalformedDocument = errors.New("malformed archive document")

// ErrCorruptMetadata is returned when the metadata block is present but its
// structured data does not parse or is missing required fields.
var ErrCorruptMetadata = errors.New("corrupt archive metadata")

// IsArchiveDocument reports whether text looks like an archive document.
// Used by the message handler to route inbound text to the restore path.
func IsArchiveDocument(text string) bool {
	return strings.HasPrefix(text, DocumentTitle) && strings.Contains(text, "session_metadata:")
}

// Encode serializes ctx into an archive document ended at endedAt. Output is
// deterministic for identical input: the metadata block is struct-ordered
// YAML and all rendered times come from the context and endedAt.
func Encode(ctx *chattypes.ConversationContext, endedAt time.Time) (string, error) {
	metadata := chattypes.SessionMetadata{
		SessionID: ctx.SessionID,
		StartTime: ctx.StartTime(),
		EndTime:   endedAt,
		Context:   *ctx,
	}

	yamlMetadata, err := yaml.Marshal(&metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	var b strings.Builder
	b.WriteString(DocumentTitle + "\n")
	b.WriteString("<!-- セッション復元用メタデータ -->\n")
	b.WriteString(metadataOpen)
	b.WriteString(strings.TrimRight(string(yamlMetadata), "\n"))
	b.WriteString(metadataClose + "\n")
	b.WriteString("\n## 基本情報\n")
	b.WriteString("- セッションID: " + metadata.SessionID + "\n")
	b.WriteString("- 開始時刻: " + metadata.StartTime.Format("2006-01-02 15:04:05") + "\n")
	b.WriteString("- 終了時刻: " + metadata.EndTime.Format("2006-01-02 15:04:05") + "\n")
	b.WriteString("\n## コンテキスト情報\n")
	b.WriteString("- お酒レベル: " + renderAlcoholLevel(ctx.AlcoholLevel) + "\n")
	b.WriteString("- 気分: " + ctx.Mood + "\n")
	b.WriteString("- 話題: " + ctx.Topic + "\n")
	b.WriteString("\n## 会話ログ\n")
	b.WriteString(renderTranscript(ctx.Messages))

	return b.String(), nil
}

// Decode locates the metadata block in document and reconstructs the
// embedded conversation context. The human-readable sections are ignored.
// The caller is responsible for assigning a fresh expiry to the result.
func Decode(document string) (*chattypes.ConversationContext, error) {
	start := strings.Index(document, metadataOpen)
	if start == -1 {
		return nil, fmt.Errorf("%w: metadata markers not found", ErrMalformedDocument)
	}
	body := document[start+len(metadataOpen):]

	end := strings.Index(body, metadataClose)
	if end == -1 {
		return nil, fmt.Errorf("%w: metadata block not terminated", ErrMalformedDocument)
	}

	var metadata chattypes.SessionMetadata
	if err := yaml.Unmarshal([]byte(body[:end]), &metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}

	if err := validateMetadata(&metadata); err != nil {
		return nil, err
	}

	restored := metadata.Context
	restored.SessionID = metadata.SessionID
	return &restored, nil
}

func validateMetadata(metadata *chattypes.SessionMetadata) error {
	if metadata.SessionID == "" {
		return fmt.Errorf("%w: session_id missing", ErrCorruptMetadata)
	}
	if metadata.StartTime.IsZero() || metadata.EndTime.IsZero() {
		return fmt.Errorf("%w: session timestamps missing", ErrCorruptMetadata)
	}
	if metadata.Context.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: context timestamp missing", ErrCorruptMetadata)
	}
	// A session that recorded no messages archives as an explicit empty list;
	// an absent key means the block was truncated or hand-edited.
	if metadata.Context.Messages == nil {
		return fmt.Errorf("%w: message list missing", ErrCorruptMetadata)
	}
	for i, msg := range metadata.Context.Messages {
		if msg.Role != chattypes.RoleUser && msg.Role != chattypes.RoleAssistant {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrCorruptMetadata, i, msg.Role)
		}
		if msg.Timestamp.IsZero() {
			return fmt.Errorf("%w: message %d timestamp missing", ErrCorruptMetadata, i)
		}
	}
	return nil
}

func renderTranscript(messages []chattypes.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		role := "ユーザー"
		if msg.Role == chattypes.RoleAssistant {
			role = "ボット"
		}
		sentiment := ""
		if msg.Sentiment != "" {
			sentiment = " (" + msg.Sentiment + ")"
		}

		b.WriteString("### " + role + " (" + msg.Timestamp.Format("15:04:05") + ")" + sentiment + "\n")
		b.WriteString(msg.Content + "\n\n")
	}
	return b.String()
}

func renderAlcoholLevel(level int) string {
	switch level {
	case 0:
		return "飲んでいない"
	case 1:
		return "🍺 少し飲んだ"
	case 2:
		return "🍺🍺 まあまあ飲んだ"
	case 3:
		return "🍺🍺🍺 かなり飲んだ"
	default:
		return "不明"
	}
}

// AlcoholLevelText returns the display label for an alcohol level, used by
// the bot's confirmation replies.
func AlcoholLevelText(level int) string {
	switch level {
	case 0:
		return "飲んでいない"
	case 1:
		return "少し飲んだ"
	case 2:
		return "まあまあ飲んだ"
	case 3:
		return "かなり飲んだ"
	default:
		return "不明"
	}
}
