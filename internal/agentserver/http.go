package agentserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bytemomo/bastion/internal/agent"
	"bytemomo/bastion/internal/domain"
)

// APIVersion is reported in the generated OpenAPI document.
const APIVersion = "1.0.0"

// Config for the HTTP handler.
type Config struct {
	Service *Service
	// TokenSecret enables HS256 bearer authentication when set.
	TokenSecret string
}

// NewHandler returns the HTTP API of the agent.
func NewHandler(cfg Config) http.Handler {
	svc := cfg.Service
	if svc == nil {
		svc = &Service{}
	}

	router := chi.NewRouter()
	if cfg.TokenSecret != "" {
		router.Use(newAuthMiddleware(cfg.TokenSecret))
	}

	hcfg := huma.DefaultConfig("Bastion Agent", APIVersion)
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	registerHealth(api)
	registerHandshake(api, svc)
	registerExecute(api, svc)
	return router
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        agent.HealthPath,
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerHandshake(api huma.API, svc *Service) {
	huma.Register(api, huma.Operation{
		OperationID: "handshake",
		Method:      http.MethodPost,
		Path:        agent.HandshakePath,
		Summary:     "Open an agent session",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body agent.HandshakeRequest
	}) (*struct {
		Body HandshakeResponse `json:"body"`
	}, error) {
		resp, err := svc.Handshake(ctx, input.Body)
		if errors.Is(err, ErrUnsupportedVersion) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("handshake failed", err)
		}
		return &struct {
			Body HandshakeResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerExecute(api huma.API, svc *Service) {
	huma.Register(api, huma.Operation{
		OperationID: "execute-module",
		Method:      http.MethodPost,
		Path:        agent.ExecutePath,
		Summary:     "Execute one module",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body agent.ExecuteRequest
	}) (*struct {
		Body domain.ModuleResult `json:"body"`
	}, error) {
		return &struct {
			Body domain.ModuleResult `json:"body"`
		}{Body: svc.Execute(ctx, input.Body)}, nil
	})
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware requires a valid bearer token on everything but health.
func newAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == agent.HealthPath {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(req.Header.Get("Authorization"))
			if !ok {
				respondStatusError(w, huma.Error401Unauthorized("bearer token required"))
				return
			}
			if _, err := agent.ParseToken(token, secret); err != nil {
				respondStatusError(w, huma.Error401Unauthorized("invalid bearer token"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
