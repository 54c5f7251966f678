package telegram

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/tempo-fm/chime/models"
	"github.com/tempo-fm/chime/service/history"
)

const sendRetries = 3

// send delivers a message through the shared rate limiter with a bounded
// retry. Delivery past that is best effort; exactly-once is not promised.
func (s *Service) send(ctx context.Context, params *bot.SendMessageParams) {
	_, err := backoff.Retry(ctx, func() (*tgmodels.Message, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return s.bot.SendMessage(ctx, params)
	}, backoff.WithMaxTries(sendRetries))

	if err != nil {
		s.logger.Printf("Error sending message to chat %v: %v", params.ChatID, err)
	}
}

func (s *Service) sendPhoto(ctx context.Context, params *bot.SendPhotoParams) error {
	_, err := backoff.Retry(ctx, func() (*tgmodels.Message, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return s.bot.SendPhoto(ctx, params)
	}, backoff.WithMaxTries(sendRetries))
	return err
}

// NotifyNowPlaying sends the cover photo with a caption and an inline
// link button. With no cover art it degrades to a plain text message.
func (s *Service) NotifyNowPlaying(ctx context.Context, event *models.NowPlaying) error {
	caption := s.formatNowPlaying(event.Track)
	markup := tgmodels.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
			{{Text: "▶ Open in Spotify", URL: event.Track.URL}},
		},
	}

	if event.Track.CoverURL == "" {
		s.send(ctx, &bot.SendMessageParams{
			ChatID:      event.ChatID,
			Text:        caption,
			ParseMode:   tgmodels.ParseModeMarkdown,
			ReplyMarkup: markup,
		})
		return nil
	}

	err := s.sendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:      event.ChatID,
		Photo:       &tgmodels.InputFileString{Data: event.Track.CoverURL},
		Caption:     caption,
		ParseMode:   tgmodels.ParseModeMarkdown,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("error sending now-playing photo: %w", err)
	}
	return nil
}

// SendDailyReport delivers one chat's flushed reporting window.
func (s *Service) SendDailyReport(ctx context.Context, report history.Report) {
	s.send(ctx, &bot.SendMessageParams{
		ChatID:    report.ChatID,
		Text:      s.formatReport(report),
		ParseMode: tgmodels.ParseModeMarkdown,
	})
}

// NotifyAuthLost prompts a chat to re-authorize after its polling was
// suspended.
func (s *Service) NotifyAuthLost(ctx context.Context, chatID int64) {
	if s.deps.LoginURL == nil {
		s.send(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "⚠️ Your Spotify session expired and notifications are paused",
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		return
	}

	url, err := s.deps.LoginURL(chatID)
	if err != nil {
		s.logger.Printf("Error building login URL for chat %d: %v", chatID, err)
		return
	}

	s.send(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      "⚠️ Your Spotify session expired and notifications are paused\\. Authorize again to resume 👇",
		ParseMode: tgmodels.ParseModeMarkdown,
		ReplyMarkup: tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
				{{Text: "🎧 Authorize Spotify", URL: url}},
			},
		},
	})
}
