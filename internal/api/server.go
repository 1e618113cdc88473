package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lifesim/internal/advisory"
	"lifesim/internal/auth"
	"lifesim/internal/config"
	"lifesim/internal/depreciation"
	"lifesim/internal/metrics"
	"lifesim/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID uuid.UUID
	Email  string
	Token  string
}

type Authenticator interface {
	SignUp(ctx context.Context, email, password, username string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

type Players interface {
	EnsurePlayer(ctx context.Context, userID uuid.UUID, email, username string) error
	TouchLogin(ctx context.Context, userID uuid.UUID) error
	SetPushToken(ctx context.Context, userID uuid.UUID, token string) error
	Notifications(ctx context.Context, playerID uuid.UUID, limit int) ([]store.Notification, error)
	Mentors(ctx context.Context) ([]advisory.Mentor, error)
	ActiveConstraints(ctx context.Context, playerID uuid.UUID) (*advisory.Constraints, error)
	StartMission(ctx context.Context, playerID uuid.UUID, missionKey string, c advisory.Constraints) (uuid.UUID, error)
	CompleteMission(ctx context.Context, playerID, missionID uuid.UUID) error
}

type Liabilities interface {
	Catalog(ctx context.Context) ([]depreciation.CatalogItem, error)
	Holdings(ctx context.Context, playerID uuid.UUID) ([]depreciation.Holding, error)
	Purchase(ctx context.Context, in depreciation.PurchaseInput) (depreciation.Holding, error)
	Preview(ctx context.Context, holdingID uuid.UUID) (depreciation.Preview, error)
	Sell(ctx context.Context, in depreciation.SellInput) (depreciation.SaleResult, error)
}

type Advisor interface {
	AnalyzePlayer(ctx context.Context, playerID uuid.UUID) (advisory.Metrics, error)
	SafeMessages(ctx context.Context, playerID uuid.UUID) ([]advisory.Message, error)
	Stats(ctx context.Context, playerID uuid.UUID) (advisory.Stats, error)
	MarkRead(ctx context.Context, playerID, interactionID uuid.UUID) (advisory.Interaction, error)
	MarkAdviceFollowed(ctx context.Context, playerID, interactionID uuid.UUID) (advisory.Interaction, error)
	CheckRealTime(ctx context.Context, playerID uuid.UUID, action string, data advisory.ActionData) *advisory.Message
}

type Deps struct {
	Auth        Authenticator
	Verifier    auth.Verifier
	Players     Players
	Liabilities Liabilities
	Advisor     Advisor
	// Metrics is optional; without it /metrics is not served.
	Metrics *metrics.Collector
}

type Server struct {
	cfg         config.APIConfig
	log         *slog.Logger
	auth        Authenticator
	verifier    auth.Verifier
	players     Players
	liabilities Liabilities
	advisor     Advisor
	metrics     *metrics.Collector
	mux         *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:         cfg,
		log:         logger.With("component", "api"),
		auth:        deps.Auth,
		verifier:    deps.Verifier,
		players:     deps.Players,
		liabilities: deps.Liabilities,
		advisor:     deps.Advisor,
		metrics:     deps.Metrics,
		mux:         chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Put("/push-token", s.handlePushToken)
			r.Get("/notifications", s.handleNotifications)

			r.Get("/catalog", s.handleCatalog)
			r.Get("/holdings", s.handleHoldings)
			r.Post("/holdings", s.handleBuyHolding)
			r.Get("/holdings/{id}/preview", s.handlePreview)
			r.Post("/holdings/{id}/sell", s.handleSellHolding)

			r.Get("/mentors", s.handleMentors)
			r.Get("/mentor/metrics", s.handleMentorMetrics)
			r.Get("/mentor/messages", s.handleMentorMessages)
			r.Get("/mentor/stats", s.handleMentorStats)
			r.Post("/mentor/interactions/{id}/read", s.handleInteractionRead)
			r.Post("/mentor/interactions/{id}/followed", s.handleInteractionFollowed)
			r.Post("/mentor/react", s.handleMentorReact)

			r.Post("/missions/start", s.handleMissionStart)
			r.Get("/missions/active", s.handleMissionActive)
			r.Post("/missions/{id}/complete", s.handleMissionComplete)
			r.Post("/missions/check-action", s.handleCheckAction)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.verifier.VerifyAccessToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.Warn("token verification failed", "err", err)
			}
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		id, err := uuid.Parse(user.ID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token subject")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: id,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == uuid.Nil {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

// startSession creates the player on first sight and records the login.
func (s *Server) startSession(ctx context.Context, session auth.Session, username string) error {
	id, err := uuid.Parse(session.User.ID)
	if err != nil {
		return fmt.Errorf("auth user id: %w", err)
	}
	if username == "" {
		username = session.User.Username()
	}
	if err := s.players.EnsurePlayer(ctx, id, session.User.Email, username); err != nil {
		return err
	}
	return s.players.TouchLogin(ctx, id)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(in.Username)
	session, err := s.auth.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password), username)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.User.ID != "" {
		if err := s.startSession(r.Context(), session, username); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.log.Error("login failed", "error", err)
		writeError(w, http.StatusBadGateway, "auth provider unavailable")
		return
	}
	if err := s.startSession(r.Context(), session, ""); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handlePushToken(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.players.SetPushToken(r.Context(), user.UserID, in.Token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.players.Notifications(r.Context(), user.UserID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, depreciation.ErrDuplicateIdempotency), errors.Is(err, store.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, depreciation.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, advisory.ErrActionBlocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, depreciation.ErrNotFound), errors.Is(err, depreciation.ErrItemNotFound),
		errors.Is(err, advisory.ErrNotFound), errors.Is(err, store.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}
