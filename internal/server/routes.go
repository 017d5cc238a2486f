package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"

	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/procedure"
)

const maxBodyBytes = 1 << 20

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.cfg.GlobalRateLimit > 0 {
		r.Use(httprate.Limit(
			s.cfg.GlobalRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				s.respondWithError(w, r, domain.ErrRateLimited("global"))
			}),
		))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, r, domain.New(domain.KindNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, r, domain.New(domain.KindBadRequest, "method not allowed"))
	})

	r.Get("/", s.HelloWorldHandler)
	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/rpc", func(r chi.Router) {
		r.Get("/{procedure}", s.rpcHandler)
		r.Post("/{procedure}", s.rpcHandler)
	})

	r.Route("/todos", func(r chi.Router) {
		r.Get("/", s.procedureHandler("todo.list", noInput, http.StatusOK))
		r.Post("/", s.procedureHandler("todo.create", bodyInput, http.StatusCreated))
		r.Patch("/{id}/toggle", s.procedureHandler("todo.toggle", bodyWithID, http.StatusOK))
		r.Put("/{id}", s.procedureHandler("todo.update", bodyWithID, http.StatusOK))
		r.Delete("/{id}", s.procedureHandler("todo.delete", bodyWithID, http.StatusOK))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/sign-up/email", s.procedureHandler("auth.signUp", bodyInput, http.StatusOK))
		r.Post("/sign-in/email", s.procedureHandler("auth.signIn", bodyInput, http.StatusOK))
		r.Post("/sign-out", s.procedureHandler("auth.signOut", noInput, http.StatusOK))
		r.Post("/revoke-sessions", s.procedureHandler("auth.revokeSessions", noInput, http.StatusOK))
		r.Get("/get-session", s.procedureHandler("auth.getSession", noInput, http.StatusOK))
		r.Post("/send-verification-email", s.procedureHandler("auth.sendVerificationEmail", noInput, http.StatusOK))
		r.Get("/verify-email", s.procedureHandler("auth.verifyEmail", queryInput("token"), http.StatusOK))
	})

	return r
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, r, http.StatusOK, map[string]string{"message": "Hello World from Todo Backend!"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthStats := s.db.Health()
	if status, ok := healthStats["status"]; ok && status == "down" {
		s.respondWithJSON(w, r, http.StatusServiceUnavailable, healthStats)
		return
	}
	s.respondWithJSON(w, r, http.StatusOK, healthStats)
}

// rpcHandler serves /rpc/{procedure}. POST takes the input as the JSON body,
// GET as the "input" query parameter.
func (s *Server) rpcHandler(w http.ResponseWriter, r *http.Request) {
	var input []byte
	if r.Method == http.MethodGet {
		input = []byte(r.URL.Query().Get("input"))
	} else {
		body, err := readBody(w, r)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		input = body
	}
	s.invoke(w, r, chi.URLParam(r, "procedure"), input, http.StatusOK)
}

// inputFunc extracts the raw procedure input from a REST-style request.
type inputFunc func(w http.ResponseWriter, r *http.Request) ([]byte, error)

func noInput(http.ResponseWriter, *http.Request) ([]byte, error) { return nil, nil }

func bodyInput(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return readBody(w, r)
}

// bodyWithID merges the {id} path parameter into the JSON body.
func bodyWithID(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, &fields); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.Wrap(domain.KindBadRequest, "malformed JSON input", err)
	}
	// a literal null body decodes to a nil map
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	id, err := json.Marshal(chi.URLParam(r, "id"))
	if err != nil {
		return nil, domain.ErrInternal(err)
	}
	fields["id"] = id
	return json.Marshal(fields)
}

func queryInput(names ...string) inputFunc {
	return func(_ http.ResponseWriter, r *http.Request) ([]byte, error) {
		q := r.URL.Query()
		fields := make(map[string]string, len(names))
		for _, name := range names {
			if v := q.Get(name); v != "" {
				fields[name] = v
			}
		}
		return json.Marshal(fields)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.New(domain.KindBadRequest, "request body too large")
		}
		return nil, domain.Wrap(domain.KindBadRequest, "could not read request body", err)
	}
	return body, nil
}

func (s *Server) procedureHandler(name string, input inputFunc, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := input(w, r)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		s.invoke(w, r, name, raw, status)
	}
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, name string, input []byte, status int) {
	call := procedure.NewCall(r, middleware.GetReqID(r.Context()))
	call.Input = input

	out, err := s.procedures.Invoke(r.Context(), name, call)
	for key, values := range call.ResponseHeader {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithJSON(w, r, status, out)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError writes the error envelope. Only the kind, message and
// metadata of a domain error reach the client; anything else is reported
// as a bare internal error.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	detail := errorDetail{
		Code:      string(domain.KindInternal),
		Message:   "internal server error",
		RequestID: middleware.GetReqID(r.Context()),
	}

	var de *domain.Error
	if errors.As(err, &de) {
		detail.Code = string(de.Kind)
		detail.Message = de.Message
		detail.Meta = de.Meta
	} else {
		s.log.Error().Err(err).Str("request_id", detail.RequestID).Msg("unclassified error")
	}

	s.respondWithJSON(w, r, StatusFor(domain.Kind(detail.Code)), errorBody{Error: detail})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	render.Status(r, code)
	render.JSON(w, r, payload)
}
