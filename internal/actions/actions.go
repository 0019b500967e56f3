// Package actions implements the user-triggered operations: it validates
// input, gates privileged calls on the session, calls the backend and
// reports every outcome as a status message.
package actions

import (
	"context"
	"log/slog"

	"github.com/phonemulator/console/internal/client"
	"github.com/phonemulator/console/internal/display"
	"github.com/phonemulator/console/internal/session"
)

// Gateway is the backend API used by Service. *client.HTTPClient
// implements it.
type Gateway interface {
	Register(ctx context.Context, username, password string) (*client.MessageResponse, error)
	Login(ctx context.Context, username, password string) (*client.MessageResponse, error)
	GetUserInfo(ctx context.Context, username string) (*client.UserInfo, error)
	UpdateUserPassword(ctx context.Context, username, newPassword string) (*client.MessageResponse, error)
	AskLLM(ctx context.Context, username, prompt string) (*client.LLMResponse, error)
}

// ErrNotLoggedIn is returned by AskLLM when no session exists.
var ErrNotLoggedIn = &client.ValidationError{Message: "Please log in first."}

// Service runs operations against a Gateway and reports to a Sink. Its
// methods may be called concurrently.
type Service struct {
	api     Gateway
	session *session.State
	sink    display.Sink
	logger  *slog.Logger
}

// New creates a Service. A nil logger discards diagnostics.
func New(api Gateway, st *session.State, sink display.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{api: api, session: st, sink: sink, logger: logger}
}

// CurrentUser returns the logged-in username.
func (s *Service) CurrentUser() (string, bool) {
	return s.session.Get()
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, username, password string) error {
	resp, err := s.api.Register(ctx, username, password)
	if err != nil {
		return s.fail("register", err)
	}
	s.ok(messageOr(resp, "Registration succeeded."))
	return nil
}

// Login authenticates username. On success the session is set to
// username; on a failed request it is cleared. Concurrent logins each
// apply their own outcome when they complete.
func (s *Service) Login(ctx context.Context, username, password string) error {
	resp, err := s.api.Login(ctx, username, password)
	if err != nil {
		if !isValidation(err) {
			s.session.ClearOnLoginFailure()
		}
		return s.fail("login", err)
	}
	s.session.SetOnLoginSuccess(username)
	s.logger.Info("logged in", "username", username)
	s.ok(messageOr(resp, "Login succeeded."))
	return nil
}

// GetUserInfo looks up username. The lookup name is unrelated to the
// session.
func (s *Service) GetUserInfo(ctx context.Context, username string) (*client.UserInfo, error) {
	info, err := s.api.GetUserInfo(ctx, username)
	if err != nil {
		return nil, s.fail("get user", err)
	}
	s.ok("User found: " + info.Username)
	return info, nil
}

// UpdatePassword changes the password of username.
func (s *Service) UpdatePassword(ctx context.Context, username, newPassword string) error {
	resp, err := s.api.UpdateUserPassword(ctx, username, newPassword)
	if err != nil {
		return s.fail("update password", err)
	}
	s.ok(messageOr(resp, "Password updated."))
	return nil
}

// AskLLM sends prompt as the logged-in user and returns the generated
// text. Without a session it fails without contacting the backend.
func (s *Service) AskLLM(ctx context.Context, prompt string) (string, error) {
	username, ok := s.session.Get()
	if !ok {
		return "", s.fail("ask llm", ErrNotLoggedIn)
	}
	resp, err := s.api.AskLLM(ctx, username, prompt)
	if err != nil {
		return "", s.fail("ask llm", err)
	}
	s.ok("LLM responded.")
	return resp.Text, nil
}

func (s *Service) ok(text string) {
	s.sink.ShowStatus(text, false)
}

func (s *Service) fail(op string, err error) error {
	if isValidation(err) {
		s.logger.Debug("operation rejected", "op", op, "error", err)
	} else {
		s.logger.Warn("operation failed", "op", op, "error", err)
	}
	s.sink.ShowStatus(err.Error(), true)
	return err
}
