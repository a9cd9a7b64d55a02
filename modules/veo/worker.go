package veo

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/genai"
)

// waitForOperation polls op every interval until it is done or ctx ends.
func waitForOperation(ctx context.Context, api videoAPI, op *genai.GenerateVideosOperation, interval time.Duration) (*genai.GenerateVideosOperation, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempt := 0
	for !op.Done {
		select {
		case <-ctx.Done():
			log.Printf("🛑 [Veo] Stopped waiting for %s: %v", op.Name, ctx.Err())
			return nil, ctx.Err()
		case <-ticker.C:
		}

		attempt++
		next, err := api.poll(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation: %w", err)
		}
		if next.Name == "" {
			next.Name = op.Name
		}
		op = next
		log.Printf("⏳ [Veo] Waiting for video generation to complete... (poll %d)", attempt)
	}
	return op, nil
}
