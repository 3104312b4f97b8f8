package routes

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gigflow/identity"
	"gigflow/jobs"
	"gigflow/live"
	"gigflow/middleware"
	"gigflow/ratelim"
)

// Deps is what the route groups need beyond the router.
type Deps struct {
	Handlers       *jobs.Handlers
	Auth           *identity.Verifier
	RateLimiter    *ratelim.RateLimiter
	Idempotency    middleware.IdempotencyStore
	Hub            *live.Hub
	AllowedOrigins []string
}

func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func RoutesWrapper(router *httprouter.Router, d Deps) {
	router.GET("/health", Index)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	AddJobRoutes(router, d)
	AddInvitationRoutes(router, d)
	AddSubmissionRoutes(router, d)
	AddAccountRoutes(router, d)
	AddLiveRoutes(router, d)
}

func read(d Deps) middleware.Middleware {
	return middleware.Chain(d.Auth.OptionalAuth, d.RateLimiter.Limit)
}

func private(d Deps) middleware.Middleware {
	return middleware.Chain(d.Auth.Authenticate, d.RateLimiter.Limit)
}

// write guards mutating routes; a repeated Idempotency-Key replays the first
// response.
func write(d Deps) middleware.Middleware {
	return middleware.Chain(d.Auth.Authenticate, d.RateLimiter.Limit, middleware.Idempotent(d.Idempotency))
}

func AddJobRoutes(router *httprouter.Router, d Deps) {
	h := d.Handlers
	router.GET("/api/jobs", read(d)(h.ListOpen))
	router.POST("/api/jobs", write(d)(h.Post))
	router.GET("/api/jobs/:id", read(d)(h.Get))
	router.POST("/api/jobs/:id/apply", write(d)(h.Apply))
	router.DELETE("/api/jobs/:id/apply", write(d)(h.Withdraw))
	router.POST("/api/jobs/:id/applicants/:user/accept", write(d)(h.AcceptApplier))
	router.POST("/api/jobs/:id/applicants/:user/reject", write(d)(h.RejectApplier))
	router.POST("/api/jobs/:id/invitations", write(d)(h.Invite))
	router.POST("/api/jobs/:id/start", write(d)(h.Start))
	router.POST("/api/jobs/:id/finish", write(d)(h.Finish))
	router.POST("/api/jobs/:id/cancel", write(d)(h.Cancel))
	router.GET("/api/jobs/:id/submissions", private(d)(h.ListSubmissions))
	router.POST("/api/jobs/:id/submissions", write(d)(h.Submit))
	router.GET("/api/jobs/:id/receipt", private(d)(h.Receipt))
	router.GET("/api/me", private(d)(h.Dashboard))
}

func AddInvitationRoutes(router *httprouter.Router, d Deps) {
	router.POST("/api/invitations/:id/accept", write(d)(d.Handlers.AcceptInvitation))
	router.POST("/api/invitations/:id/reject", write(d)(d.Handlers.RejectInvitation))
}

func AddSubmissionRoutes(router *httprouter.Router, d Deps) {
	router.POST("/api/submissions/:id/review", write(d)(d.Handlers.Review))
}

func AddAccountRoutes(router *httprouter.Router, d Deps) {
	h := d.Handlers
	router.GET("/api/wallet", private(d)(h.Balance))
	router.POST("/api/wallet/topup", write(d)(h.TopUp))
	router.GET("/api/wallet/history", private(d)(h.History))
	router.GET("/api/inbox", private(d)(h.ListInbox))
	router.POST("/api/inbox/:id/read", private(d)(h.MarkRead))
	router.GET("/api/chats", private(d)(h.ListChats))
}

func AddLiveRoutes(router *httprouter.Router, d Deps) {
	router.GET("/ws/jobs/:id", d.Auth.OptionalAuth(live.Handler(d.Hub, d.AllowedOrigins)))
}
