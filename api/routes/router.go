package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/dormstay-backend/api/controllers"
	"github.com/angelmondragon/dormstay-backend/api/middleware"
	"github.com/angelmondragon/dormstay-backend/internal/reservations"
	"github.com/angelmondragon/dormstay-backend/internal/rooms"
	"github.com/angelmondragon/dormstay-backend/pkg/config"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dormstay-backend/pkg/redis"
)

// Dependencies bundles what the router hands to controllers. Idempotency and
// the redis entry of Ready are nil when redis is not configured.
type Dependencies struct {
	Ready        map[string]controllers.Pinger
	Idempotency  pkgredis.IdempotencyStore
	Reservations reservations.Service
	Rooms        rooms.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireOperator(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.ReservationCreate(deps.Reservations, logg))
			r.Get("/", controllers.ReservationList(deps.Reservations, logg))
			r.Route("/{reservationId}", func(r chi.Router) {
				r.Get("/", controllers.ReservationDetail(deps.Reservations, logg))
				r.Post("/status", controllers.ReservationUpdateStatus(deps.Reservations, logg))
				r.Post("/extend", controllers.ReservationExtend(deps.Reservations, logg))
				r.Post("/release", controllers.ReservationRelease(deps.Reservations, logg))
				r.Post("/archive", controllers.ReservationArchive(deps.Reservations, logg))
			})
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", controllers.RoomCreate(deps.Rooms, logg))
			r.Get("/", controllers.RoomList(deps.Rooms, logg))
			r.Route("/{roomId}", func(r chi.Router) {
				r.Get("/", controllers.RoomDetail(deps.Rooms, logg))
				r.Post("/hold", controllers.RoomSetHold(deps.Rooms, logg))
				r.Post("/recalculate", controllers.RoomRecalculate(deps.Rooms, logg))
			})
		})
	})

	return r
}
