// Package bot implements the conversation flow: it dispatches inbound
// events, drives the session manager, asks the LLM backend for replies, and
// sends responses back through the messaging client.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"kaiwabot/internal/codec"
	"kaiwabot/internal/dedup"
	"kaiwabot/internal/line"
	"kaiwabot/internal/llm"
	"kaiwabot/internal/logger"
	"kaiwabot/internal/session"
	"kaiwabot/pkg/chattypes"
)

const (
	replyGenericError   = "すみません、エラーが発生しました。もう一度お試しください。"
	replyGreeting       = "こんにちは！お酒は飲まれていますか？"
	replyFollowGreeting = "フォローありがとうございます！\n下のメニューから「会話を始める」を選んでください。"
	replyRestored       = "🔄 前回の会話コンテキストを復元しました！\n続きの会話を始めましょう。"
	replyRestoreFailed  = "申し訳ありません。コンテキストの復元に失敗しました。"
	replyNoSession      = "申し訳ありません。会話を開始してからお試しください。"
	replySessionEnded   = "会話はすでに終了しています。"

	replyHelp = `💡 使い方ガイド

1️⃣ 「会話を始める」を選択
2️⃣ お酒レベルを設定
3️⃣ 話題を選択
4️⃣ 自由に会話を楽しむ

📝 その他の機能
・「話を深める」で詳しい話を聞けます
・「話題を変える」で新しい話題に切り替えられます
・会話は30分で自動的に終了し、記録が保存されます
・保存された記録を送ると、前回の続きから話せます

❓ 困ったときは
・「会話を終える」で強制終了できます
・もう一度このヘルプを見るには「ヘルプ」を選択してください`
)

// topicNames maps postback topic keys onto their display names.
var topicNames = map[string]string{
	"work":    "仕事",
	"hobby":   "趣味",
	"romance": "恋愛",
	"other":   "その他",
}

// Messenger is the outbound messaging surface the handler needs. *line.Client
// satisfies it; tests substitute a recorder.
type Messenger interface {
	ReplyText(ctx context.Context, replyToken string, texts ...string) error
	Reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) error
	Push(ctx context.Context, userID string, messages ...linebot.SendingMessage) error
	LinkRichMenu(ctx context.Context, userID, richMenuID string) error
}

var _ Messenger = (*line.Client)(nil)

// RichMenus holds the pre-provisioned rich menu IDs the bot switches between.
// Empty IDs disable menu switching.
type RichMenus struct {
	MainID         string
	ConversationID string
}

// Handler processes inbound events end to end.
type Handler struct {
	manager   *session.Manager
	dedup     *dedup.Deduplicator
	llmClient llm.Client
	messenger Messenger
	menus     RichMenus

	now func() time.Time
}

// NewHandler wires a Handler from its collaborators.
func NewHandler(manager *session.Manager, deduplicator *dedup.Deduplicator, llmClient llm.Client, messenger Messenger, menus RichMenus) *Handler {
	return &Handler{
		manager:   manager,
		dedup:     deduplicator,
		llmClient: llmClient,
		messenger: messenger,
		menus:     menus,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent runs one inbound event through dedup and kind dispatch.
// Duplicate deliveries are silently ignored. Handler errors are logged and
// answered with a generic apology where a reply token is available.
func (h *Handler) HandleEvent(ctx context.Context, event chattypes.InboundEvent) {
	if !h.dedup.Admit(ctx, event.DedupKey()) {
		logger.Debug("Skipping duplicate event", "key", event.DedupKey(), "user", event.UserID)
		return
	}

	logger.EventOperation(string(event.Kind), event.UserID)

	var err error
	switch event.Kind {
	case chattypes.EventKindMessage:
		err = h.handleMessage(ctx, event)
	case chattypes.EventKindPostback:
		err = h.handlePostback(ctx, event)
	case chattypes.EventKindFollow:
		err = h.handleFollow(ctx, event)
	case chattypes.EventKindUnfollow:
		err = h.manager.Discard(ctx, event.UserID)
	}

	if err != nil {
		logger.Error("Event handling failed", "kind", string(event.Kind), "user", event.UserID, "error", err)
		if event.ReplyToken != "" {
			if replyErr := h.messenger.ReplyText(ctx, event.ReplyToken, replyGenericError); replyErr != nil {
				logger.Error("Failed to send error reply", "user", event.UserID, "error", replyErr)
			}
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, event chattypes.InboundEvent) error {
	if codec.IsArchiveDocument(event.Text) {
		return h.handleRestore(ctx, event)
	}

	conv, err := h.manager.Get(ctx, event.UserID)
	if errors.Is(err, session.ErrNotFound) {
		// First contact in a while: open a session and ask about drinks
		if _, err := h.manager.Create(ctx, event.UserID); err != nil {
			return err
		}
		return h.messenger.Reply(ctx, event.ReplyToken,
			linebot.NewTextMessage(replyGreeting),
			line.NewAlcoholLevelTemplate(),
		)
	}
	if err != nil {
		return err
	}

	userMessage := chattypes.Message{
		Role:      chattypes.RoleUser,
		Content:   event.Text,
		Timestamp: event.Timestamp.UTC(),
	}
	conv, err = h.manager.AddMessage(ctx, event.UserID, userMessage)
	if err != nil {
		return err
	}

	replyText, err := h.llmClient.GenerateReply(ctx, llm.BuildSystemPrompt(conv), conv.Messages)
	if err != nil {
		return fmt.Errorf("reply generation failed: %w", err)
	}

	if err := h.messenger.ReplyText(ctx, event.ReplyToken, replyText); err != nil {
		return err
	}

	botMessage := chattypes.Message{
		Role:      chattypes.RoleAssistant,
		Content:   replyText,
		Timestamp: h.now(),
	}
	if _, err := h.manager.AddMessage(ctx, event.UserID, botMessage); err != nil {
		return err
	}
	return nil
}

func (h *Handler) handleRestore(ctx context.Context, event chattypes.InboundEvent) error {
	_, err := h.manager.Restore(ctx, event.UserID, event.Text)
	if err != nil {
		if errors.Is(err, codec.ErrMalformedDocument) || errors.Is(err, codec.ErrCorruptMetadata) {
			logger.Warn("Restore rejected", "user", event.UserID, "error", err)
			return h.messenger.ReplyText(ctx, event.ReplyToken, replyRestoreFailed)
		}
		return err
	}

	h.switchToConversationMenu(ctx, event.UserID)
	return h.messenger.ReplyText(ctx, event.ReplyToken, replyRestored)
}

func (h *Handler) handlePostback(ctx context.Context, event chattypes.InboundEvent) error {
	data := event.PostbackData

	switch {
	case data == "start_conversation":
		return h.handleStartConversation(ctx, event)
	case data == "set_alcohol_level":
		return h.messenger.Reply(ctx, event.ReplyToken, line.NewAlcoholLevelTemplate())
	case data == "change_topic":
		return h.messenger.Reply(ctx, event.ReplyToken, line.NewTopicTemplate())
	case data == "help":
		return h.messenger.ReplyText(ctx, event.ReplyToken, replyHelp)
	case data == "deep_dive":
		return h.handleDeepDive(ctx, event)
	case data == "end_conversation":
		return h.handleEndConversation(ctx, event)
	case strings.HasPrefix(data, "alcohol_"):
		level, err := strconv.Atoi(strings.TrimPrefix(data, "alcohol_"))
		if err != nil {
			return fmt.Errorf("invalid alcohol postback %q: %w", data, err)
		}
		return h.handleAlcoholLevelSelection(ctx, event, level)
	case strings.HasPrefix(data, "topic_"):
		return h.handleTopicSelection(ctx, event, strings.TrimPrefix(data, "topic_"))
	default:
		logger.Debug("Unknown postback data", "data", data, "user", event.UserID)
		return nil
	}
}

func (h *Handler) handleStartConversation(ctx context.Context, event chattypes.InboundEvent) error {
	if _, err := h.manager.Get(ctx, event.UserID); errors.Is(err, session.ErrNotFound) {
		if _, err := h.manager.Create(ctx, event.UserID); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	h.switchToConversationMenu(ctx, event.UserID)
	return h.messenger.Reply(ctx, event.ReplyToken, line.NewAlcoholLevelTemplate())
}

func (h *Handler) handleDeepDive(ctx context.Context, event chattypes.InboundEvent) error {
	conv, err := h.manager.Get(ctx, event.UserID)
	if errors.Is(err, session.ErrNotFound) {
		return h.messenger.ReplyText(ctx, event.ReplyToken, replyNoSession)
	}
	if err != nil {
		return err
	}

	prompt := conv.LastMessage + "について、もう少し詳しく聞かせていただけますか？\n例えば：\n・きっかけは何でしたか？\n・どんな気持ちでしたか？\n・その後どうなりましたか？"
	return h.messenger.ReplyText(ctx, event.ReplyToken, prompt)
}

func (h *Handler) handleEndConversation(ctx context.Context, event chattypes.InboundEvent) error {
	conv, err := h.manager.Get(ctx, event.UserID)
	if errors.Is(err, session.ErrNotFound) {
		return h.messenger.ReplyText(ctx, event.ReplyToken, replySessionEnded)
	}
	if err != nil {
		return err
	}

	duration := int(h.now().Sub(conv.StartTime()).Minutes())
	messageCount := len(conv.Messages)

	document, err := h.manager.Archive(ctx, event.UserID)
	if err != nil {
		return err
	}

	h.switchToMainMenu(ctx, event.UserID)
	err = h.messenger.Reply(ctx, event.ReplyToken,
		line.NewSessionEndTemplate(duration, messageCount),
		linebot.NewTextMessage(document),
	)
	if err != nil {
		// The context is already gone; if the document is not delivered the
		// session is unrecoverable. Fall back to a push when the reply token
		// is spent or expired.
		logger.Warn("Reply failed after archive, pushing document", "user", event.UserID, "error", err)
		return h.messenger.Push(ctx, event.UserID, linebot.NewTextMessage(document))
	}
	return nil
}

func (h *Handler) handleAlcoholLevelSelection(ctx context.Context, event chattypes.InboundEvent, level int) error {
	if err := h.ensureContext(ctx, event.UserID); err != nil {
		return err
	}

	if _, err := h.manager.Update(ctx, event.UserID, chattypes.ContextUpdate{AlcoholLevel: &level}); err != nil {
		return err
	}

	confirmation := fmt.Sprintf("お酒レベルを「%s」に設定しました！", codec.AlcoholLevelText(level))
	return h.messenger.Reply(ctx, event.ReplyToken,
		linebot.NewTextMessage(confirmation),
		line.NewTopicTemplate(),
	)
}

func (h *Handler) handleTopicSelection(ctx context.Context, event chattypes.InboundEvent, topicKey string) error {
	topic, known := topicNames[topicKey]
	if !known {
		logger.Debug("Unknown topic key", "topic", topicKey, "user", event.UserID)
		return nil
	}

	if err := h.ensureContext(ctx, event.UserID); err != nil {
		return err
	}

	if _, err := h.manager.Update(ctx, event.UserID, chattypes.ContextUpdate{Topic: &topic}); err != nil {
		return err
	}

	h.switchToConversationMenu(ctx, event.UserID)
	return h.messenger.ReplyText(ctx, event.ReplyToken,
		topic+"について話しましょう！\nどんなことがありましたか？")
}

func (h *Handler) handleFollow(ctx context.Context, event chattypes.InboundEvent) error {
	h.switchToMainMenu(ctx, event.UserID)
	return h.messenger.ReplyText(ctx, event.ReplyToken, replyFollowGreeting)
}

// ensureContext opens a session for the user if none is live. Update itself
// never creates contexts, so selection postbacks create one explicitly first.
func (h *Handler) ensureContext(ctx context.Context, userID string) error {
	_, err := h.manager.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		_, err = h.manager.Create(ctx, userID)
	}
	return err
}

// Rich menu switches are cosmetic; failures are logged, never fatal.
func (h *Handler) switchToMainMenu(ctx context.Context, userID string) {
	if err := h.messenger.LinkRichMenu(ctx, userID, h.menus.MainID); err != nil {
		logger.Warn("Failed to switch to main menu", "user", userID, "error", err)
	}
}

func (h *Handler) switchToConversationMenu(ctx context.Context, userID string) {
	if err := h.messenger.LinkRichMenu(ctx, userID, h.menus.ConversationID); err != nil {
		logger.Warn("Failed to switch to conversation menu", "user", userID, "error", err)
	}
}
