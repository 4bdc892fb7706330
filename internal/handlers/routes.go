package handlers

import (
	"net/http"

	"github.com/PortNumber53/tubeshelf/backend/internal/guard"
	"github.com/PortNumber53/tubeshelf/backend/internal/middleware"
	"github.com/gorilla/mux"
)

// RegisterRoutes wires the JSON API, the realtime stream, the Stripe webhook
// and the guarded page routes onto r. Auth runs for every route so handlers
// can read the caller's session.
func RegisterRoutes(h *Handler, r *mux.Router) {
	r.Use(middleware.Metrics, middleware.Auth(h.Sessions))

	r.HandleFunc("/health", h.Health).Methods("GET")

	registerAuthRoutes(h, r)

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "not_found", "No such endpoint")
	})
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.RequireSession)

	uploads := middleware.NewUploadLimitEnforcer(h.Profiles)
	protected.HandleFunc("/videos", h.ListVideos).Methods("GET")
	protected.Handle("/videos", uploads.Middleware(http.HandlerFunc(h.CreateVideo))).Methods("POST")
	protected.HandleFunc("/videos/latest", h.LatestVideo).Methods("GET")
	protected.HandleFunc("/videos/{id}", h.GetVideo).Methods("GET")
	protected.HandleFunc("/videos/{id}", h.UpdateVideo).Methods("PUT")
	protected.HandleFunc("/videos/{id}", h.DeleteVideo).Methods("DELETE")
	protected.HandleFunc("/videos/{id}/favorite", h.ToggleFavorite).Methods("POST")
	protected.HandleFunc("/videos/{id}/position", h.SavePosition).Methods("PUT")
	protected.HandleFunc("/videos/{id}/poster", h.VideoPoster).Methods("GET")

	protected.HandleFunc("/categories", h.ListCategories).Methods("GET")
	protected.HandleFunc("/categories", h.AddCategory).Methods("POST")
	protected.HandleFunc("/categories/{name}", h.DeleteCategory).Methods("DELETE")

	protected.HandleFunc("/profile", h.GetProfile).Methods("GET")

	RegisterBillingRoutes(h, api, protected)

	api.HandleFunc("/events/ws", h.EventsWebSocket).Methods("GET")

	r.HandleFunc("/webhook/stripe", h.StripeWebhook).Methods("POST")

	registerPageRoutes(h, r)
}

func registerAuthRoutes(h *Handler, r *mux.Router) {
	auth := r.PathPrefix("/api/auth").Subrouter()
	limited := auth.NewRoute().Subrouter()
	if h.Limiter != nil {
		limited.Use(h.Limiter.Limit("auth"))
	}
	limited.HandleFunc("/sign-up", h.SignUp).Methods("POST")
	limited.HandleFunc("/sign-in", h.SignIn).Methods("POST")
	auth.HandleFunc("/sign-out", h.SignOut).Methods("POST")
	auth.HandleFunc("/refresh", h.RefreshSession).Methods("POST")
	auth.HandleFunc("/session", h.GetSession).Methods("GET")
	auth.Handle("/user", middleware.RequireSession(http.HandlerFunc(h.UpdateUser))).Methods("PUT")
}

// RegisterBillingRoutes registers the billing routes. Plan listing and plan
// selection are open; selection without a session answers auth_required.
func RegisterBillingRoutes(h *Handler, api, protected *mux.Router) {
	api.HandleFunc("/billing/plans", h.GetBillingPlans).Methods("GET")
	api.HandleFunc("/billing/select-plan", h.SelectPlan).Methods("POST")
	protected.HandleFunc("/billing/checkout", h.CreateCheckout).Methods("POST")
	protected.HandleFunc("/billing/check-subscription", h.CheckSubscription).Methods("POST")
}

func registerPageRoutes(h *Handler, r *mux.Router) {
	r.PathPrefix("/assets/").Handler(h.Assets())

	pages := r.NewRoute().Subrouter()
	pages.Use(guard.PageGuard(h.Policy, h.Sessions))
	for _, p := range []string{guard.PathLanding, guard.PathAuth, guard.PathPricing, guard.PathHome, guard.PathUpload, guard.PathDash, "/video/{id}"} {
		pages.HandleFunc(p, h.Page).Methods("GET")
	}
	// Unknown paths go through the guard too, which sends them to "/".
	pages.PathPrefix("/").HandlerFunc(h.Page).Methods("GET")
}
