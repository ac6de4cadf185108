package config

import (
	"os"

	"github.com/joho/godotenv"

	"skoll/internal/common"
)

// Config carries the process-level knobs. Everything comes from the
// environment, with a .env file as a development fallback.
type Config struct {
	Admin       common.AccountID // account allowed to register assets
	GatewayAddr string           // TCP order gateway listen address
	APIAddr     string           // HTTP query surface listen address
	JournalPath string           // trade journal directory; empty disables it
	Debug       bool
}

const (
	envAdmin   = "SKOLL_ADMIN"
	envGateway = "SKOLL_GATEWAY_ADDR"
	envAPI     = "SKOLL_API_ADDR"
	envJournal = "SKOLL_JOURNAL_PATH"
	envDebug   = "SKOLL_DEBUG"
)

func Load() Config {
	// A missing .env is fine; real env vars win regardless.
	_ = godotenv.Load()

	return Config{
		Admin:       common.AccountID(getenv(envAdmin, "admin")),
		GatewayAddr: getenv(envGateway, "127.0.0.1:9001"),
		APIAddr:     getenv(envAPI, "127.0.0.1:9002"),
		JournalPath: os.Getenv(envJournal),
		Debug:       os.Getenv(envDebug) != "",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
