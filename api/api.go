// Package api exposes the messaging service over REST. Identities created
// through the API live in this process; clients hold a bearer token that
// names their identity, never the key material itself.
package api

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/crewchat/crewseal/messaging"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	svc      *messaging.Service
	members  *messaging.DirectoryMembership
	verifier *messaging.TOTPVerifier
	tokens   *tokenStore
	audit    *auditLogger
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithStepUpVerifier enables the step-up enrollment endpoint. Pass the same
// verifier the messaging service was configured with.
func WithStepUpVerifier(v *messaging.TOTPVerifier) Option {
	return func(a *API) {
		a.verifier = v
	}
}

// New creates a new API instance.
func New(svc *messaging.Service, members *messaging.DirectoryMembership, opts ...Option) *API {
	a := &API{
		svc:     svc,
		members: members,
		tokens:  newTokenStore(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/crews/{crewID}", func(r chi.Router) {
		r.Post("/encryption/initialize", a.Initialize)
		r.Get("/encryption/status", a.Status)

		r.Group(func(r chi.Router) {
			r.Use(a.AuthMiddleware)
			r.Post("/encryption/rotate", a.RotateKeys)
			r.Post("/encryption/disable", a.Disable)
			r.Post("/messages", a.EncryptMessage)
			r.Post("/messages/decrypt", a.DecryptMessage)
		})

		r.Get("/members", a.ListMembers)
		r.Post("/members", a.AddMember)
		r.Delete("/members/{userID}", a.RemoveMember)
	})

	r.With(a.AuthMiddleware).Post("/stepup/enroll", a.EnrollStepUp)

	return r
}
