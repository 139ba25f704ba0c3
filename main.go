package main

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/focushub/spotify-cli/cmd"
)

// main sets up logging and runs the CLI. Logging is off unless
// FOCUSHUB_DEBUG is set or --debug is passed.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	if debug, _ := strconv.ParseBool(os.Getenv("FOCUSHUB_DEBUG")); debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}

	cmd.Execute()
}
