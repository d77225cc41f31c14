package main

import (
	"log"

	"userhub/cmd/internal/app"
)

func main() {
	if err := app.RunSeed(); err != nil {
		log.Fatal(err)
	}
}
