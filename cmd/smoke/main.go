// Smoke test against a running API: registers a user, buys the demo
// course, completes a lesson and checks the derived progress. Run it
// after `go run ./cmd/api` with in-memory stores.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"learnhub.org/internal/client"
	"learnhub.org/internal/kvslot"
	"learnhub.org/internal/session"
)

func main() {
	baseURL := os.Getenv("LEARNHUB_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	api := client.New(baseURL)

	slotDir, err := os.MkdirTemp("", "learnhub-smoke")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(slotDir)

	slot, err := kvslot.NewFileSlot(slotDir)
	if err != nil {
		log.Fatalf("open slot: %v", err)
	}
	store := session.NewStore(api, slot)

	email := fmt.Sprintf("smoke-%d@example.com", rand.Int())
	identity, err := store.Register(ctx, "Smoke Tester", email, "correct-horse")
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	log.Printf("registered %s as %s", email, identity.ID)

	res, err := api.Purchase(ctx, "python-essentials", 4900)
	if err != nil {
		log.Fatalf("purchase: %v", err)
	}
	if res.AlreadyOwned {
		log.Fatalf("fresh account already owns the course")
	}

	// Second purchase must replay, not duplicate.
	res2, err := api.Purchase(ctx, "python-essentials", 4900)
	if err != nil {
		log.Fatalf("repeat purchase: %v", err)
	}
	if !res2.AlreadyOwned || res2.Entitlement.ID != res.Entitlement.ID {
		log.Fatalf("purchase not idempotent: %+v vs %+v", res.Entitlement, res2.Entitlement)
	}

	full, err := api.FetchCourseContent(ctx, "python-essentials")
	if err != nil {
		log.Fatalf("fetch content: %v", err)
	}
	if !full.Course.Access {
		log.Fatalf("expected full access after purchase")
	}
	var firstLesson string
	for _, sec := range full.Course.Sections {
		if len(sec.Lessons) > 0 {
			firstLesson = sec.Lessons[0].ID
			break
		}
	}
	if firstLesson == "" {
		log.Fatalf("course has no lessons")
	}

	if err := api.MarkLessonComplete(ctx, firstLesson); err != nil {
		log.Fatalf("mark complete: %v", err)
	}

	after, err := api.FetchCourseContent(ctx, "python-essentials")
	if err != nil {
		log.Fatalf("refetch content: %v", err)
	}
	if after.Progress.Completed != 1 {
		log.Fatalf("completed = %d, want 1", after.Progress.Completed)
	}

	store.Logout(ctx)

	fmt.Printf("SMOKE OK: %d/%d lessons (%d%%)\n",
		after.Progress.Completed, after.Progress.Total, after.Progress.Percent)
}
