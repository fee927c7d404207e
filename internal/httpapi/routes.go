package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/unrolled/render"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/cache"
	"github.com/Alcatamy/Mercato/internal/market"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/squad"
	"github.com/Alcatamy/Mercato/internal/standings"
	"github.com/Alcatamy/Mercato/internal/ws"
)

type Deps struct {
	Gate           *session.Gate
	Cache          *cache.Cache
	Market         *market.Engine
	Squad          *squad.Service
	Standings      *standings.Ledger
	Logger         *zap.Logger
	AllowedOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	rnd := render.New(render.Options{UnEscapeHTML: true})
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Cache, d.Logger))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Post("/sessions", Login(d.Gate, rnd))

		r.Get("/state", GetState(d.Cache, rnd))
		r.Get("/squads/{managerID}", GetSquad(d.Cache, rnd))
		r.Get("/market", GetMarket(d.Cache, rnd))
		r.Get("/market/listings/{listingID}/offers", GetOffers(d.Market, rnd))
		r.Get("/catalog", SearchCatalog(d.Squad, rnd))
		r.Get("/catalog/teams", CatalogTeams(d.Squad, rnd))
		r.Get("/jornadas", ListJornadas(d.Standings, rnd))
		r.Get("/jornadas/{jornadaID}", GetJornada(d.Standings, rnd))

		// Routes acting on behalf of a manager
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(d.Gate, rnd))

			r.Delete("/sessions", Logout(d.Gate, rnd))
			r.Get("/sessions/me", Me(rnd))

			r.Post("/squad/players", AddCustomPlayer(d.Squad, rnd))
			r.Post("/squad/catalog/{playerID}", AddCatalogPlayer(d.Squad, rnd))
			r.Delete("/squad/players/{playerID}", RemovePlayer(d.Squad, rnd))

			r.Post("/market/listings", ListForSale(d.Market, rnd))
			r.Post("/market/listings/{listingID}/offers", MakeOffer(d.Market, rnd))
			r.Post("/market/listings/{listingID}/offers/{offerID}/accept", AcceptOffer(d.Market, rnd))
			r.Delete("/market/listings/{listingID}", CancelSale(d.Market, rnd))

			r.Post("/jornadas", SaveJornada(d.Standings, rnd))
			r.Put("/jornadas/{jornadaID}/pagos/{manager}", SetPayment(d.Standings, rnd))
		})
	})
	return r
}
