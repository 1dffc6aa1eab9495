package main

import (
	"log"

	"co2exporter/v0/cmd"
	fileio "co2exporter/v0/utils/fileIO"
	dotenv "github.com/joho/godotenv"
)

// Set at build time via ldflags.
var version = "dev"

func main() {
	if fileio.FileExists(".env") {
		if err := dotenv.Load(); err != nil {
			log.Fatalf("failed to load .env file: %v", err)
		}
	}

	if err := cmd.Execute(version); err != nil {
		log.Fatal(err)
	}
}
