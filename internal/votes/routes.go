package votes

import (
	"net/http"

	"github.com/EmpoweredVote/EV-Globe/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	return NewHandler(liveStore, liveResolver).Routes()
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/{pollID}/votes/by-subdivision", h.BySubdivision)

	r.Group(func(r chi.Router) {
		r.Use(middleware.UserIDMiddleware)
		r.Post("/{pollID}/votes", h.CastVote)
	})

	return r
}
