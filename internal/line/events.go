package line

import (
	"errors"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"kaiwabot/internal/logger"
	"kaiwabot/pkg/chattypes"
)

// ErrInvalidSignature is returned by ParseWebhook when the request's
// x-line-signature header does not match the body.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ParseWebhook verifies the request signature and converts the webhook
// payload into the bot's inbound-event variants. Event kinds outside the
// closed set are dropped with a debug log.
func (c *Client) ParseWebhook(r *http.Request) ([]chattypes.InboundEvent, error) {
	sdkEvents, err := c.bot.ParseRequest(r)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, err
	}

	events := make([]chattypes.InboundEvent, 0, len(sdkEvents))
	for _, sdkEvent := range sdkEvents {
		event, ok := convertEvent(sdkEvent)
		if !ok {
			logger.Debug("Skipping unhandled event type", "type", string(sdkEvent.Type))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// convertEvent maps one SDK event onto the tagged-variant inbound event,
// carrying only the fields relevant to its kind.
func convertEvent(sdkEvent *linebot.Event) (chattypes.InboundEvent, bool) {
	event := chattypes.InboundEvent{
		ReplyToken: sdkEvent.ReplyToken,
		Timestamp:  sdkEvent.Timestamp,
		EventID:    sdkEvent.WebhookEventID,
	}
	if sdkEvent.Source != nil {
		event.UserID = sdkEvent.Source.UserID
	}

	switch sdkEvent.Type {
	case linebot.EventTypeMessage:
		textMessage, ok := sdkEvent.Message.(*linebot.TextMessage)
		if !ok {
			// Stickers, images and the like are not conversation input
			return chattypes.InboundEvent{}, false
		}
		event.Kind = chattypes.EventKindMessage
		event.Text = textMessage.Text
	case linebot.EventTypePostback:
		event.Kind = chattypes.EventKindPostback
		if sdkEvent.Postback != nil {
			event.PostbackData = sdkEvent.Postback.Data
		}
	case linebot.EventTypeFollow:
		event.Kind = chattypes.EventKindFollow
	case linebot.EventTypeUnfollow:
		event.Kind = chattypes.EventKindUnfollow
	default:
		return chattypes.InboundEvent{}, false
	}

	if event.UserID == "" {
		return chattypes.InboundEvent{}, false
	}
	return event, true
}
