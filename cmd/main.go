package main

import (
	"log/slog"
	"os"
	"time"

	"gitlab.com/greyxor/slogor"

	"inputshare/cmd/inputshare"
)

func main() {
	slog.SetDefault(slog.New(
		slogor.NewHandler(os.Stderr,
			slogor.SetLevel(slog.LevelInfo),
			slogor.SetTimeFormat(time.TimeOnly)),
	))
	os.Exit(inputshare.Execute())
}
