package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"cassa/internal/auth"
	"cassa/internal/cache"
	"cassa/internal/core"
	"cassa/internal/entries"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

type ctxKey int

const (
	workspaceKey ctxKey = iota
	memberKey
)

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and answered with a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, core.ErrNotAuthenticated):
		UnauthorizedError("Authentication required").Write(w)
	case errors.Is(err, core.ErrForbidden):
		ForbiddenError(err.Error()).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("Not found").Write(w)
	case errors.Is(err, gateway.ErrConflict):
		ErrorResponse(http.StatusConflict, "Record already exists").Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeInternal,
			log.FieldPath, r.URL.Path)
		InternalServerError("Internal error").Write(w)
	}
}

// parseBody parses the request body, answering 400 on malformed input.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("Malformed request body").Write(w)
		return nil, false
	}
	return p, true
}

// requireMember resolves {groupID} into the caller's membership and the
// loaded workspace. Non-members get 403 before anything is loaded.
func (s *Server) requireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := auth.ActorFrom(ctx)
		if !ok {
			UnauthorizedError("Authentication required").Write(w)
			return
		}
		groupID := mux.Vars(r)["groupID"]

		m, err := s.groups.Membership(ctx, groupID, actor.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ws, err := s.workspaces.Get(ctx, groupID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		logger := log.FromContext(ctx).With(log.FieldGroupID, groupID, log.FieldActorID, actor.ID)
		ctx = log.NewContext(ctx, logger)
		ctx = context.WithValue(ctx, workspaceKey, ws)
		ctx = context.WithValue(ctx, memberKey, m)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func workspaceFrom(ctx context.Context) *entries.Workspace {
	ws, _ := ctx.Value(workspaceKey).(*entries.Workspace)
	return ws
}

func memberFrom(ctx context.Context) core.Member {
	m, _ := ctx.Value(memberKey).(core.Member)
	return m
}

func actorFrom(r *http.Request) core.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

// changed fans a stored mutation out to other instances and drops the
// group's cached summaries.
func (s *Server) changed(r *http.Request, groupID, table, op, recordID string) {
	if s.summaries != nil {
		s.summaries.DeletePrefix(cache.GroupPrefix(groupID))
	}
	if s.changes != nil {
		s.changes.Changed(r.Context(), groupID, table, op, recordID, actorFrom(r).ID)
	}
}

// mutated writes the standard reply to a successful mutation.
func mutated(w http.ResponseWriter, status int, resource, groupID, message string, body any) {
	b := NewHTMXResponse().
		Status(status).
		TriggerChanged(resource, groupID).
		TriggerSuccessNotification(message)
	if body != nil {
		b.JSON(body)
	}
	b.Write(w)
}
