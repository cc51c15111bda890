package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/EmpoweredVote/EV-Globe/internal/config"
	"github.com/EmpoweredVote/EV-Globe/internal/db"
	"github.com/EmpoweredVote/EV-Globe/internal/geo"
	"github.com/EmpoweredVote/EV-Globe/internal/metrics"
	"github.com/EmpoweredVote/EV-Globe/internal/middleware"
	"github.com/EmpoweredVote/EV-Globe/internal/votes"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	db.Connect(cfg.DatabaseURL)

	geo.Init(cfg)
	votes.Init(geo.Svc.Resolver)

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Get("/", RootHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/geo", geo.SetupRoutes())
	r.Mount("/polls", votes.SetupRoutes())

	log.Printf("Server listening on port :%s...", cfg.Port)
	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
