package main

import (
	"context"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"

	"exitscan/internal/cli"
)

// @title Exit Scan Kiosk API
// @version 1.0
// @description Local control surface of the school exit scanning kiosk.
// @BasePath /
func main() {
	if err := cli.BuildCLI().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("exitscan failed")
		os.Exit(1)
	}
}
