package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"learnhub.org/internal/auth"
	"learnhub.org/internal/config"
	"learnhub.org/internal/content"
	"learnhub.org/internal/entitlement"
	"learnhub.org/internal/forum"
	"learnhub.org/internal/httpapi"
	"learnhub.org/internal/obs"
	"learnhub.org/internal/progress"
	"learnhub.org/internal/store/pg"
	"learnhub.org/internal/stream"
)

var version = "0.3.1"

func main() {
	_ = godotenv.Load()
	obs.Init()

	cfg := config.Load()

	deps := httpapi.Deps{
		Stream:     stream.New(),
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
	}
	probe := httpapi.ReadyProbe{}

	var store *pg.Store
	if cfg.PGDSN != "" {
		var err error
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		deps.Users = store
		deps.Ledger = store
		deps.Catalog = store
		deps.Records = store
		deps.Forum = store
		probe.DB = store.DB()
	} else {
		// Dev mode: everything in memory, one demo course pre-loaded.
		catalog := content.NewMemoryCatalog()
		catalog.Add(demoCourse())
		deps.Users = auth.NewInMemoryUsers()
		deps.Ledger = entitlement.NewInMemory()
		deps.Catalog = catalog
		deps.Records = progress.NewInMemoryStore()
		deps.Forum = forum.NewInMemory()
		log.Printf("LEARNHUB_PG_DSN not set, using in-memory stores")
	}
	deps.Registrar = auth.NewRegistrar(deps.Users)

	api := httpapi.New(probe, version, deps)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting learnhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}

func demoCourse() content.Course {
	return content.Course{
		ID:    "python-essentials",
		Title: "Python Essentials",
		Price: 4900,
		Sections: []content.Section{
			{
				ID:    "sec-basics",
				Title: "Getting Started",
				Lessons: []content.Lesson{
					{ID: "les-hello", SectionID: "sec-basics", Title: "Hello, Python", Kind: content.KindVideo, ContentRef: "vid://les-hello", RequiredSeconds: 120},
					{ID: "les-vars", SectionID: "sec-basics", Title: "Variables and Types", Kind: content.KindText, ContentRef: "txt://les-vars"},
					{ID: "les-flow", SectionID: "sec-basics", Title: "Control Flow", Kind: content.KindVideo, ContentRef: "vid://les-flow", RequiredSeconds: 180},
				},
			},
			{
				ID:    "sec-functions",
				Title: "Functions",
				Lessons: []content.Lesson{
					{ID: "les-def", SectionID: "sec-functions", Title: "Defining Functions", Kind: content.KindText, ContentRef: "txt://les-def"},
					{ID: "les-quiz", SectionID: "sec-functions", Title: "Checkpoint Quiz", Kind: content.KindQuiz, ContentRef: "qz://les-quiz"},
				},
			},
		},
	}
}
