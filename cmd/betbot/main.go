package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/m3rciful/betbot/core/buildinfo"
	"github.com/m3rciful/betbot/core/cmd"
	"github.com/m3rciful/betbot/internal/app"
)

func main() {
	// .env is optional; real deployments set variables in the environment.
	_ = godotenv.Load()

	log.Printf("betbot %s (%s)", buildinfo.Version, buildinfo.Commit)

	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("betbot: %v", err)
	}
}
