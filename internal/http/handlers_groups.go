package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

type inviteResponse struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.ListGroups(r.Context(), actorFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []core.Group{}
	}
	NewHTMXResponse().JSON(groups).Write(w)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	name, err := p.Required("name")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.groups.CreateGroup(r.Context(), actorFrom(r), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mutated(w, http.StatusCreated, "groups", g.ID, "Group created", g)
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	email, err := p.Required("email")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID := mux.Vars(r)["groupID"]
	inv, token, err := s.groups.CreateInvite(r.Context(), actorFrom(r), groupID, email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mutated(w, http.StatusCreated, "invites", groupID, "Invite created", inviteResponse{
		ID:        inv.ID,
		GroupID:   inv.GroupID,
		Email:     inv.Email,
		ExpiresAt: inv.ExpiresAt,
		Token:     token,
	})
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	token, err := p.Required("token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	m, err := s.groups.AcceptInvite(ctx, actorFrom(r), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// loaded mirrors do not know the new member yet
	if err := s.workspaces.Invalidate(ctx, m.GroupID); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Failed to refresh workspace after invite",
			log.FieldGroupID, m.GroupID, log.FieldError, err)
	}
	s.changed(r, m.GroupID, gateway.TableMembers, log.OpCreate, m.ID)
	mutated(w, http.StatusOK, "groups", m.GroupID, "Joined group", m)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().JSON(workspaceFrom(r.Context()).Members.Items()).Write(w)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws, id := workspaceFrom(ctx), mux.Vars(r)["id"]
	if memberFrom(ctx).Role != core.RoleOwner {
		ForbiddenError("Only owners can change roles").Write(w)
		return
	}
	if _, ok := ws.Members.Find(id); !ok {
		NotFoundError("Member not found").Write(w)
		return
	}
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	role, err := p.Required("role")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := ws.Members.SetRole(ctx, actorFrom(r).ID, id, core.Role(role))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableMembers, log.OpUpdate, id)
	mutated(w, http.StatusOK, "members", ws.GroupID(), "Role updated", m)
}

// handleRemoveMember lets owners remove anyone and members remove themselves.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws, id := workspaceFrom(ctx), mux.Vars(r)["id"]
	target, ok := ws.Members.Find(id)
	if !ok {
		NotFoundError("Member not found").Write(w)
		return
	}
	actor := actorFrom(r)
	if memberFrom(ctx).Role != core.RoleOwner && target.UserID != actor.ID {
		ForbiddenError("Only owners can remove other members").Write(w)
		return
	}
	if err := ws.Members.Remove(ctx, actor.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableMembers, log.OpDelete, id)
	mutated(w, http.StatusOK, "members", ws.GroupID(), "Member removed", map[string]string{"id": id})
}
