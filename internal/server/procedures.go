package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/procedure"
	"github.com/Tomlord1122/todo-app/internal/service"
)

// HealthResponse is the constant returned by the healthCheck procedure.
const HealthResponse = "OK"

type SignOutResponse struct {
	Success bool `json:"success"`
}

type StatusResponse struct {
	Status bool `json:"status"`
}

func (s *Server) registerProcedures() {
	r := s.procedures

	procedure.Public(r, "healthCheck", s.healthCheck)

	procedure.Protected(r, "todo.list", s.listTodos)
	procedure.Protected(r, "todo.create", s.createTodo)
	procedure.Protected(r, "todo.toggle", s.toggleTodo)
	procedure.Protected(r, "todo.update", s.updateTodo)
	procedure.Protected(r, "todo.delete", s.deleteTodo)

	procedure.Public(r, "auth.signUp", s.signUp, s.authRateLimit("auth.signUp"))
	procedure.Public(r, "auth.signIn", s.signIn, s.authRateLimit("auth.signIn"))
	procedure.Protected(r, "auth.signOut", s.signOut)
	procedure.Protected(r, "auth.revokeSessions", s.revokeSessions)
	procedure.Public(r, "auth.getSession", s.getSession, procedure.Nullable())
	procedure.Protected(r, "auth.sendVerificationEmail", s.sendVerificationEmail, s.authRateLimit("auth.sendVerificationEmail"))
	procedure.Public(r, "auth.verifyEmail", s.verifyEmail)
}

func (s *Server) authRateLimit(rule string) procedure.Option {
	return procedure.WithMiddleware(procedure.RateLimit(s.limiter, rule, s.cfg.AuthRateLimit, s.cfg.AuthRateWindow, s.log))
}

func (s *Server) healthCheck(context.Context, *procedure.Call, procedure.NoInput) (string, error) {
	return HealthResponse, nil
}

// --- todos ---

func (s *Server) listTodos(ctx context.Context, call *procedure.Call, _ procedure.NoInput) ([]service.TodoResponse, error) {
	return s.todos.ListTodos(ctx, call.Identity.UserID)
}

func (s *Server) createTodo(ctx context.Context, call *procedure.Call, in service.CreateTodoRequest) (*service.TodoResponse, error) {
	return s.todos.CreateTodo(ctx, call.Identity.UserID, in)
}

func (s *Server) toggleTodo(ctx context.Context, call *procedure.Call, in service.TodoIDRequest) (*service.TodoResponse, error) {
	return s.todos.ToggleTodo(ctx, call.Identity.UserID, in.ID)
}

func (s *Server) updateTodo(ctx context.Context, call *procedure.Call, in service.UpdateTodoRequest) (*service.TodoResponse, error) {
	return s.todos.UpdateTodo(ctx, call.Identity.UserID, in)
}

func (s *Server) deleteTodo(ctx context.Context, call *procedure.Call, in service.TodoIDRequest) (*service.TodoResponse, error) {
	return s.todos.DeleteTodo(ctx, call.Identity.UserID, in.ID)
}

// --- auth ---

func (s *Server) signUp(ctx context.Context, call *procedure.Call, in service.SignUpRequest) (*service.AuthResult, error) {
	res, err := s.auth.SignUp(ctx, in, clientInfo(call))
	if err != nil {
		return nil, err
	}
	s.setSessionCookie(call, res.Token, res.ExpiresAt)
	return res, nil
}

func (s *Server) signIn(ctx context.Context, call *procedure.Call, in service.SignInRequest) (*service.AuthResult, error) {
	res, err := s.auth.SignIn(ctx, in, clientInfo(call))
	if err != nil {
		return nil, err
	}
	s.setSessionCookie(call, res.Token, res.ExpiresAt)
	return res, nil
}

func (s *Server) signOut(ctx context.Context, call *procedure.Call, _ procedure.NoInput) (*SignOutResponse, error) {
	if err := s.auth.SignOut(ctx, call.Identity.Session.Token); err != nil {
		return nil, err
	}
	s.clearSessionCookie(call)
	return &SignOutResponse{Success: true}, nil
}

func (s *Server) revokeSessions(ctx context.Context, call *procedure.Call, _ procedure.NoInput) (*StatusResponse, error) {
	if err := s.auth.RevokeSessions(ctx, call.Identity.UserID); err != nil {
		return nil, err
	}
	s.clearSessionCookie(call)
	return &StatusResponse{Status: true}, nil
}

// getSession answers null instead of UNAUTHORIZED when there is no session.
func (s *Server) getSession(ctx context.Context, call *procedure.Call, _ procedure.NoInput) (*service.SessionInfo, error) {
	call.ResponseHeader.Set("Cache-Control", procedure.CacheControlPrivate)

	token := call.SessionToken(s.cfg.SessionCookieName)
	if token == "" {
		return nil, nil
	}
	session, err := s.auth.ResolveSession(ctx, token)
	if err != nil {
		if domain.IsKind(err, domain.KindUnauthorized) {
			return nil, nil
		}
		return nil, err
	}
	return service.NewSessionInfo(session), nil
}

func (s *Server) sendVerificationEmail(ctx context.Context, call *procedure.Call, _ procedure.NoInput) (*StatusResponse, error) {
	if err := s.auth.SendVerificationEmail(ctx, call.Identity.UserID); err != nil {
		return nil, err
	}
	return &StatusResponse{Status: true}, nil
}

func (s *Server) verifyEmail(ctx context.Context, _ *procedure.Call, in service.VerifyEmailRequest) (*service.VerifyEmailResponse, error) {
	return s.auth.VerifyEmail(ctx, in.Token)
}

func clientInfo(call *procedure.Call) service.ClientInfo {
	return service.ClientInfo{IPAddress: call.ClientIP(), UserAgent: call.UserAgent}
}

func (s *Server) setSessionCookie(call *procedure.Call, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     s.cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	call.ResponseHeader.Add("Set-Cookie", cookie.String())
}

func (s *Server) clearSessionCookie(call *procedure.Call) {
	cookie := &http.Cookie{
		Name:     s.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	call.ResponseHeader.Add("Set-Cookie", cookie.String())
}
