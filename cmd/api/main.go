package main

import (
	"context"
	"log"

	"surgeval-backend/internal/bootstrap"
	"surgeval-backend/internal/shared/config"
	"surgeval-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	r := server.NewRouter(cfg, server.RouterDeps{
		Jobs:    app.JobsHandler,
		Uploads: app.UploadsHandler,
	})

	addr := server.Addr(cfg)
	log.Printf("Starting API server on %s", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
