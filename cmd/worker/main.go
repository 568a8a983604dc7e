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
		log.Fatalf("bootstrap worker runtime: %v", err)
	}
	if err := runtime.RunCallbackWorker(ctx); err != nil {
		log.Fatalf("run callback worker: %v", err)
	}
}
