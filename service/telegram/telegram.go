// Package telegram is the bot surface: the command handlers and inline
// menus users interact with, and the notification sink the poller and the
// daily report job deliver through.
package telegram

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/tempo-fm/chime/service/auth"
	"github.com/tempo-fm/chime/service/cleanmeta"
	"github.com/tempo-fm/chime/service/history"
	"github.com/tempo-fm/chime/service/spotify"
)

const menuButtonLabel = "📋 Menu"

// Deps carries everything the bot surface needs. Subscribe and
// Unsubscribe are closures over the scheduler and poller so this package
// stays free of their types.
type Deps struct {
	Spotify     *spotify.Client
	Tokens      auth.Store
	History     *history.Log
	Cleaner     *cleanmeta.Cleaner // nil disables title cleaning
	LoginURL    func(chatID int64) (string, error) // nil in static-token mode
	Subscribe   func(chatID int64)
	Unsubscribe func(chatID int64)
}

type Service struct {
	bot     *bot.Bot
	deps    Deps
	limiter *rate.Limiter
	logger  *log.Logger
}

func New(botToken string, deps Deps) (*Service, error) {
	s := &Service{
		deps: deps,
		// Telegram allows ~30 messages per second bot-wide.
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		logger:  log.New(os.Stdout, "telegram: ", log.LstdFlags|log.Lmsgprefix),
	}

	b, err := bot.New(botToken,
		bot.WithMessageTextHandler("/start", bot.MatchTypeExact, s.handleStart),
		bot.WithMessageTextHandler("/stop", bot.MatchTypeExact, s.handleStop),
		bot.WithMessageTextHandler("/menu", bot.MatchTypeExact, s.handleMenu),
		bot.WithMessageTextHandler(menuButtonLabel, bot.MatchTypeExact, s.handleMenu),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, s.handleCallback),
	)
	if err != nil {
		return nil, err
	}

	s.bot = b
	return s, nil
}

// Start long-polls Telegram until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Printf("Bot started")
	s.bot.Start(ctx)
}

func (s *Service) handleStart(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	chatID := update.Message.Chat.ID

	if !s.deps.Tokens.Authorized(chatID) {
		s.sendAuthPrompt(ctx, chatID)
		return
	}

	s.deps.Subscribe(chatID)

	s.send(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      "👋 Hi, I am your Spotify bot 🎵\nI will watch your music and send now\\-playing updates 🎶",
		ParseMode: tgmodels.ParseModeMarkdown,
		ReplyMarkup: tgmodels.ReplyKeyboardMarkup{
			Keyboard:       [][]tgmodels.KeyboardButton{{{Text: menuButtonLabel}}},
			ResizeKeyboard: true,
		},
	})
}

func (s *Service) handleStop(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	chatID := update.Message.Chat.ID
	s.deps.Unsubscribe(chatID)

	s.send(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "🔕 Notifications stopped\\. Send /start to resume\\.",

		ParseMode: tgmodels.ParseModeMarkdown,
	})
}

func (s *Service) handleMenu(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	s.send(ctx, &bot.SendMessageParams{
		ChatID:      update.Message.Chat.ID,
		Text:        "📋 *Main menu:*\n\nPick an action 👇",
		ParseMode:   tgmodels.ParseModeMarkdown,
		ReplyMarkup: mainMenu(),
	})
}

func (s *Service) handleCallback(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	query := update.CallbackQuery
	if query == nil || query.Message.Message == nil {
		return
	}

	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: query.ID})

	chatID := query.Message.Message.Chat.ID
	messageID := query.Message.Message.ID

	var text string
	markup := backMenu()

	switch query.Data {
	case "stats":
		text = s.overallStats(ctx, chatID)
	case "top_tracks":
		text = s.topTracks(ctx, chatID)
	case "top_artists":
		text = s.topArtists(ctx, chatID)
	case "track_count":
		text = formatTodayCount(s.deps.History.Count(chatID))
	case "listening_time":
		text = s.listeningTime(ctx, chatID)
	case "about":
		text = aboutText
	case "back":
		text = "📋 *Main menu:*\n\nPick an action 👇"
		markup = mainMenu()
	default:
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   tgmodels.ParseModeMarkdown,
		ReplyMarkup: markup,
	})
	if err != nil {
		s.logger.Printf("Error editing message for chat %d: %v", chatID, err)
	}
}

// token fetches a valid token for a pull query and converts auth failures
// into the user-facing prompt.
func (s *Service) token(ctx context.Context, chatID int64) (string, bool) {
	token, err := s.deps.Tokens.Token(ctx, chatID)
	if err != nil {
		s.logger.Printf("No valid token for chat %d: %v", chatID, err)
		return "", false
	}
	return token, true
}

func (s *Service) overallStats(ctx context.Context, chatID int64) string {
	token, ok := s.token(ctx, chatID)
	if !ok {
		return authNeededText
	}

	tracks, err := s.deps.Spotify.TopTracks(ctx, token, 10, spotify.WindowMedium)
	if err != nil {
		s.logger.Printf("Error fetching top tracks for chat %d: %v", chatID, err)
		return "❌ Could not fetch your stats, try again later"
	}

	artists, err := s.deps.Spotify.TopArtists(ctx, token, 10, spotify.WindowMedium)
	if err != nil {
		s.logger.Printf("Error fetching top artists for chat %d: %v", chatID, err)
		return "❌ Could not fetch your stats, try again later"
	}

	return formatOverallStats(tracks, artists)
}

func (s *Service) topTracks(ctx context.Context, chatID int64) string {
	token, ok := s.token(ctx, chatID)
	if !ok {
		return authNeededText
	}

	tracks, err := s.deps.Spotify.TopTracks(ctx, token, 10, spotify.WindowMedium)
	if err != nil {
		s.logger.Printf("Error fetching top tracks for chat %d: %v", chatID, err)
		return "❌ Could not fetch your top tracks"
	}

	return formatTopTracks(tracks)
}

func (s *Service) topArtists(ctx context.Context, chatID int64) string {
	token, ok := s.token(ctx, chatID)
	if !ok {
		return authNeededText
	}

	artists, err := s.deps.Spotify.TopArtists(ctx, token, 10, spotify.WindowMedium)
	if err != nil {
		s.logger.Printf("Error fetching top artists for chat %d: %v", chatID, err)
		return "❌ Could not fetch your top artists"
	}

	return formatTopArtists(artists)
}

func (s *Service) listeningTime(ctx context.Context, chatID int64) string {
	token, ok := s.token(ctx, chatID)
	if !ok {
		return authNeededText
	}

	tracks, err := s.deps.Spotify.RecentlyPlayed(ctx, token, 50)
	if err != nil {
		s.logger.Printf("Error fetching recently played for chat %d: %v", chatID, err)
		return "❌ Could not fetch your listening time"
	}

	return formatListeningTime(tracks)
}

func (s *Service) sendAuthPrompt(ctx context.Context, chatID int64) {
	if s.deps.LoginURL == nil {
		s.send(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "❌ Spotify is not configured for this bot",
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
		Text:      "🔑 Connect your Spotify account to get started",
		ParseMode: tgmodels.ParseModeMarkdown,
		ReplyMarkup: tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
				{{Text: "🎧 Authorize Spotify", URL: url}},
			},
		},
	})
}

func mainMenu() tgmodels.InlineKeyboardMarkup {
	return tgmodels.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
			{{Text: "📊 My stats", CallbackData: "stats"}},
			{
				{Text: "🎶 Top 10 tracks", CallbackData: "top_tracks"},
				{Text: "🎤 Top 10 artists", CallbackData: "top_artists"},
			},
			{{Text: "🎵 Tracks played today", CallbackData: "track_count"}},
			{{Text: "⏳ Listening time", CallbackData: "listening_time"}},
			{{Text: "ℹ️ About", CallbackData: "about"}},
		},
	}
}

func backMenu() tgmodels.InlineKeyboardMarkup {
	return tgmodels.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
			{{Text: "🔙 Back", CallbackData: "back"}},
		},
	}
}
