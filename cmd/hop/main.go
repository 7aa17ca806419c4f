package main

import (
	"log"

	"github.com/MrSnakeDoc/hop/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ hop failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ hop stopped with error: %v", err)
	}
}
