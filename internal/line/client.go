// Package line adapts the LINE Messaging API to the bot's needs: webhook
// parsing with signature verification, conversion of SDK events into the
// closed inbound-event set, reply/push delivery, rich menu switching, and
// the flex message templates the bot sends.
package line

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"kaiwabot/internal/logger"
)

// Client wraps the LINE SDK client with the operations the bot uses.
type Client struct {
	bot *linebot.Client
}

// NewClient creates a client for the given channel credentials.
func NewClient(channelSecret, channelToken string) (*Client, error) {
	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE client: %w", err)
	}
	return &Client{bot: bot}, nil
}

// ReplyText sends one or more text messages in reply to replyToken.
func (c *Client) ReplyText(ctx context.Context, replyToken string, texts ...string) error {
	messages := make([]linebot.SendingMessage, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, linebot.NewTextMessage(text))
	}
	return c.Reply(ctx, replyToken, messages...)
}

// Reply sends arbitrary messages in reply to replyToken.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) error {
	if _, err := c.bot.ReplyMessage(replyToken, messages...).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	return nil
}

// Push sends messages directly to a user outside a reply window.
func (c *Client) Push(ctx context.Context, userID string, messages ...linebot.SendingMessage) error {
	if _, err := c.bot.PushMessage(userID, messages...).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	return nil
}

// LinkRichMenu attaches the rich menu identified by richMenuID to a user.
// Menu images are provisioned out of band; the bot only switches menus by ID.
func (c *Client) LinkRichMenu(ctx context.Context, userID, richMenuID string) error {
	if richMenuID == "" {
		logger.Debug("Rich menu ID not configured, skipping link", "user", userID)
		return nil
	}
	if _, err := c.bot.LinkUserRichMenu(userID, richMenuID).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("failed to link rich menu %s: %w", richMenuID, err)
	}
	logger.Debug("Rich menu linked", "user", userID, "menu", richMenuID)
	return nil
}
