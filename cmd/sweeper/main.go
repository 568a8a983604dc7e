package main

import (
	"context"
	"log"

	"github.com/viralforge/powerauth-server/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, "configs/default.yaml")
	if err != nil {
		log.Fatalf("bootstrap sweeper runtime: %v", err)
	}
	if err := runtime.RunExpirationSweeper(ctx); err != nil {
		log.Fatalf("run expiration sweeper: %v", err)
	}
}
