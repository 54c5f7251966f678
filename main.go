package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	spotifyoauth "golang.org/x/oauth2/spotify"

	"github.com/tempo-fm/chime/config"
	"github.com/tempo-fm/chime/db"
	"github.com/tempo-fm/chime/scheduler"
	"github.com/tempo-fm/chime/server"
	"github.com/tempo-fm/chime/service/auth"
	"github.com/tempo-fm/chime/service/cleanmeta"
	"github.com/tempo-fm/chime/service/history"
	"github.com/tempo-fm/chime/service/poller"
	"github.com/tempo-fm/chime/service/spotify"
	"github.com/tempo-fm/chime/service/telegram"
	"github.com/tempo-fm/chime/util/statetoken"
)

func main() {
	config.Load()

	database, err := db.New(viper.GetString("db.path"))
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	if err := database.Initialize(); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spotifyClient := spotify.NewClient()
	listens := history.NewLog()

	sched := scheduler.New(
		time.Duration(viper.GetInt("poll.interval_seconds"))*time.Second,
		time.Duration(viper.GetInt("poll.first_delay_seconds"))*time.Second,
	)

	var cleaner *cleanmeta.Cleaner
	if viper.GetBool("report.clean_titles") {
		cleaner = cleanmeta.NewCleaner()
	}

	// Credential store: per-chat OAuth sessions, or one static app token.
	var tokens auth.Store
	var oauthStore *auth.OAuthStore
	if viper.GetString("auth.mode") == "oauth" {
		conf := &oauth2.Config{
			ClientID:     viper.GetString("spotify.client_id"),
			ClientSecret: viper.GetString("spotify.client_secret"),
			RedirectURL:  viper.GetString("callback.spotify"),
			Scopes:       viper.GetStringSlice("spotify.scopes"),
			Endpoint:     spotifyoauth.Endpoint,
		}
		refreshSkew := time.Duration(viper.GetInt("auth.refresh_skew_seconds")) * time.Second
		oauthStore = auth.NewOAuthStore(conf, database, refreshSkew)
		if err := oauthStore.LoadAllUsers(); err != nil {
			log.Printf("Warning: Failed to preload users: %v", err)
		}
		tokens = oauthStore
	} else {
		tokens = auth.NewStaticStore(viper.GetString("auth.app_token"))
	}

	// The poller delivers through the bot and the bot subscribes poll
	// tasks, so the closures below capture variables filled in afterwards.
	var track *poller.Poller
	var srv *server.Server

	subscribe := func(chatID int64) {
		track.Resume(chatID)
		sched.Subscribe(chatID, func(tickCtx context.Context) {
			track.Tick(tickCtx, chatID)
		})
	}

	var loginURL func(chatID int64) (string, error)
	if oauthStore != nil {
		loginURL = func(chatID int64) (string, error) {
			return srv.LoginURL(chatID)
		}
	}

	bot, err := telegram.New(viper.GetString("telegram.bot_token"), telegram.Deps{
		Spotify:     spotifyClient,
		Tokens:      tokens,
		History:     listens,
		Cleaner:     cleaner,
		LoginURL:    loginURL,
		Subscribe:   subscribe,
		Unsubscribe: sched.Unsubscribe,
	})
	if err != nil {
		log.Fatalf("Error creating Telegram bot: %v", err)
	}

	track = poller.New(tokens, spotifyClient, listens, database, bot)
	track.OnAuthLost(func(chatID int64) {
		sched.Unsubscribe(chatID)

		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		bot.NotifyAuthLost(notifyCtx, chatID)
	})

	// One process-wide job flushes every nonempty reporting window.
	err = sched.StartDaily(viper.GetString("report.time"), func(jobCtx context.Context) {
		for _, chatID := range listens.ChatIDs() {
			report := listens.FlushAndReport(chatID)
			bot.SendDailyReport(jobCtx, report)
		}
	})
	if err != nil {
		log.Fatalf("Error starting daily report job: %v", err)
	}

	if oauthStore != nil {
		signer := statetoken.NewSigner(viper.GetString("state.secret"), 10*time.Minute)
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		addr := fmt.Sprintf("%s:%s", viper.GetString("server.host"), viper.GetString("server.port"))

		srv = server.New(addr, logger, oauthStore, signer, subscribe)

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Callback server error: %v", err)
			}
		}()

		// Pick up sessions that survived in a file-backed database.
		for _, chatID := range oauthStore.ChatIDs() {
			subscribe(chatID)
		}
	}

	bot.Start(ctx)

	sched.Shutdown()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
}
