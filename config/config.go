package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration with viper
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it. Using default values and environment variables.")
	}

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.root_url", "http://localhost:8080")

	viper.SetDefault("spotify.scopes", []string{
		"user-read-currently-playing",
		"user-read-recently-played",
		"user-top-read",
	})
	viper.SetDefault("callback.spotify", "http://localhost:8080/callback")

	// "oauth" stores a session per chat; "token" shares one static app token.
	viper.SetDefault("auth.mode", "oauth")
	viper.SetDefault("auth.refresh_skew_seconds", 60)

	viper.SetDefault("poll.interval_seconds", 10)
	viper.SetDefault("poll.first_delay_seconds", 5)

	viper.SetDefault("report.time", "21:00")
	viper.SetDefault("report.clean_titles", true)

	viper.SetDefault("db.path", ":memory:")

	viper.AutomaticEnv()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %v", err)
		}
		log.Println("Config file not found, using default values and environment variables")
	} else {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	// check for required settings
	requiredVars := []string{"telegram.bot_token"}
	switch viper.GetString("auth.mode") {
	case "oauth":
		requiredVars = append(requiredVars, "spotify.client_id", "spotify.client_secret", "state.secret")
	case "token":
		requiredVars = append(requiredVars, "auth.app_token")
	default:
		log.Fatalf("Unknown auth.mode %q (want \"oauth\" or \"token\")", viper.GetString("auth.mode"))
	}

	missingVars := []string{}
	for _, v := range requiredVars {
		if !viper.IsSet(v) {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		log.Fatalf("Required configuration variables not set: %s", strings.Join(missingVars, ", "))
	}
}
