package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

const (
	InviteTTL    = 7 * 24 * time.Hour
	secretBytes  = 24
	inviteTokSep = "."
)

var (
	ErrInvalidInvite = fmt.Errorf("%w: invalid invite", core.ErrForbidden)
	ErrInviteExpired = fmt.Errorf("%w: invite expired", core.ErrForbidden)
	ErrInviteUsed    = fmt.Errorf("%w: invite already accepted", core.ErrForbidden)
)

// GroupService manages groups, memberships and invitations. These rows live
// outside any loaded workspace, so it talks to the gateway directly.
type GroupService struct {
	gw     gateway.Gateway
	logger *log.Logger
	now    func() time.Time
	newID  func() string
	secret func() (string, error)
	cost   int
}

type GroupOption func(*GroupService)

func WithGroupClock(now func() time.Time) GroupOption {
	return func(s *GroupService) { s.now = now }
}

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) GroupOption {
	return func(s *GroupService) { s.cost = cost }
}

func NewGroupService(gw gateway.Gateway, logger *log.Logger, opts ...GroupOption) *GroupService {
	s := &GroupService{
		gw:     gw,
		logger: logger.WithComponent(log.ComponentGroup),
		now:    time.Now,
		newID:  uuid.NewString,
		secret: randomSecret,
		cost:   bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateGroup creates a group with the actor as its only owner.
func (s *GroupService) CreateGroup(ctx context.Context, actor core.Actor, name string) (core.Group, error) {
	if actor.ID == "" {
		return core.Group{}, core.ErrNotAuthenticated
	}
	g := core.Group{
		ID:        s.newID(),
		Name:      strings.TrimSpace(name),
		CreatedBy: actor.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}

	row, err := gateway.Encode(gateway.TableGroups, g)
	if err != nil {
		return core.Group{}, err
	}
	if _, err := s.gw.Insert(ctx, gateway.TableGroups, []gateway.Row{row}); err != nil {
		s.logError(ctx, "Failed to create group", err, g.ID, actor.ID)
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}

	if _, err := s.addMember(ctx, g.ID, actor, core.RoleOwner); err != nil {
		// no transaction spans two tables through the gateway; undo by hand
		if derr := s.gw.Delete(ctx, gateway.TableGroups, g.ID); derr != nil {
			s.logError(ctx, "Failed to roll back group", derr, g.ID, actor.ID)
		}
		return core.Group{}, err
	}

	s.logger.InfoContext(ctx, "Group created", log.FieldGroupID, g.ID, log.FieldActorID, actor.ID)
	return g, nil
}

// ListGroups returns the groups the user belongs to, by name.
func (s *GroupService) ListGroups(ctx context.Context, userID string) ([]core.Group, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	rows, err := s.gw.Select(ctx, gateway.From(gateway.TableMembers).Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	members, err := gateway.DecodeAll[core.Member](gateway.TableMembers, rows)
	if err != nil {
		return nil, err
	}

	groups := make([]core.Group, 0, len(members))
	for _, m := range members {
		rows, err := s.gw.Select(ctx, gateway.From(gateway.TableGroups).Eq(gateway.ColID, m.GroupID))
		if err != nil {
			return nil, fmt.Errorf("load group %s: %w", m.GroupID, err)
		}
		if len(rows) == 0 {
			continue
		}
		g, err := gateway.Decode[core.Group](gateway.TableGroups, rows[0])
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
	return groups, nil
}

// Membership returns the user's member row in the group, or core.ErrForbidden.
func (s *GroupService) Membership(ctx context.Context, groupID, userID string) (core.Member, error) {
	if userID == "" {
		return core.Member{}, core.ErrNotAuthenticated
	}
	rows, err := s.gw.Select(ctx, gateway.From(gateway.TableMembers).Eq(gateway.ColGroupID, groupID).Eq("user_id", userID))
	if err != nil {
		return core.Member{}, fmt.Errorf("load membership: %w", err)
	}
	if len(rows) == 0 {
		return core.Member{}, fmt.Errorf("%w: not a member of %s", core.ErrForbidden, groupID)
	}
	return gateway.Decode[core.Member](gateway.TableMembers, rows[0])
}

// CreateInvite issues an invitation for email. Only owners may invite.
// The returned token is "<inviteID>.<secret>"; only the secret's hash is stored.
func (s *GroupService) CreateInvite(ctx context.Context, actor core.Actor, groupID, email string) (core.Invite, string, error) {
	m, err := s.Membership(ctx, groupID, actor.ID)
	if err != nil {
		return core.Invite{}, "", err
	}
	if m.Role != core.RoleOwner {
		return core.Invite{}, "", fmt.Errorf("%w: only owners can invite", core.ErrForbidden)
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return core.Invite{}, "", fmt.Errorf("%w: invalid email", core.ErrValidation)
	}

	secret, err := s.secret()
	if err != nil {
		return core.Invite{}, "", fmt.Errorf("generate secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return core.Invite{}, "", fmt.Errorf("hash secret: %w", err)
	}

	now := s.now().UTC()
	inv := core.Invite{
		Meta:       core.Meta{ID: s.newID(), GroupID: groupID, CreatedBy: actor.ID, CreatedAt: now},
		Email:      email,
		SecretHash: string(hash),
		ExpiresAt:  now.Add(InviteTTL),
	}
	row, err := gateway.Encode(gateway.TableInvites, inv)
	if err != nil {
		return core.Invite{}, "", err
	}
	if _, err := s.gw.Insert(ctx, gateway.TableInvites, []gateway.Row{row}); err != nil {
		s.logError(ctx, "Failed to create invite", err, groupID, actor.ID)
		return core.Invite{}, "", fmt.Errorf("create invite: %w", err)
	}

	s.logger.InfoContext(ctx, "Invite created", log.FieldGroupID, groupID, log.FieldActorID, actor.ID, log.FieldRecordID, inv.ID)
	return inv, inv.ID + inviteTokSep + secret, nil
}

// AcceptInvite redeems token for actor and returns the new membership.
// The invite is consumed before the member is added, with a write that only
// succeeds while it is still unaccepted, so a token admits one user. When
// adding the member fails the invite is released again. Accepting into a
// group the actor already belongs to returns the existing membership and
// still consumes the invite.
func (s *GroupService) AcceptInvite(ctx context.Context, actor core.Actor, token string) (core.Member, error) {
	if actor.ID == "" {
		return core.Member{}, core.ErrNotAuthenticated
	}
	id, secret, ok := strings.Cut(strings.TrimSpace(token), inviteTokSep)
	if !ok || id == "" || secret == "" {
		return core.Member{}, ErrInvalidInvite
	}

	rows, err := s.gw.Select(ctx, gateway.From(gateway.TableInvites).Eq(gateway.ColID, id))
	if err != nil {
		return core.Member{}, fmt.Errorf("load invite: %w", err)
	}
	if len(rows) == 0 {
		return core.Member{}, ErrInvalidInvite
	}
	inv, err := gateway.Decode[core.Invite](gateway.TableInvites, rows[0])
	if err != nil {
		return core.Member{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(inv.SecretHash), []byte(secret)) != nil {
		return core.Member{}, ErrInvalidInvite
	}
	now := s.now().UTC()
	if inv.AcceptedAt != nil {
		return core.Member{}, ErrInviteUsed
	}
	if !now.Before(inv.ExpiresAt) {
		return core.Member{}, ErrInviteExpired
	}

	_, err = s.gw.Update(ctx, gateway.TableInvites, inv.ID,
		gateway.Row{"accepted_at": now, "accepted_by": actor.ID},
		gateway.Where("accepted_at", nil))
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return core.Member{}, ErrInviteUsed
	case err != nil:
		s.logError(ctx, "Failed to mark invite accepted", err, inv.GroupID, actor.ID)
		return core.Member{}, fmt.Errorf("accept invite: %w", err)
	}

	m, err := s.Membership(ctx, inv.GroupID, actor.ID)
	if errors.Is(err, core.ErrForbidden) {
		m, err = s.addMember(ctx, inv.GroupID, actor, core.RoleMember)
	}
	if err != nil {
		s.releaseInvite(ctx, inv, actor.ID)
		return core.Member{}, err
	}

	s.logger.InfoContext(ctx, "Invite accepted", log.FieldGroupID, inv.GroupID, log.FieldActorID, actor.ID)
	return m, nil
}

// releaseInvite undoes the acceptance written by actorID.
func (s *GroupService) releaseInvite(ctx context.Context, inv core.Invite, actorID string) {
	_, err := s.gw.Update(context.WithoutCancel(ctx), gateway.TableInvites, inv.ID,
		gateway.Row{"accepted_at": nil, "accepted_by": nil},
		gateway.Where("accepted_by", actorID))
	if err != nil {
		s.logError(ctx, "Failed to release invite", err, inv.GroupID, actorID)
	}
}

func (s *GroupService) addMember(ctx context.Context, groupID string, actor core.Actor, role core.Role) (core.Member, error) {
	m := core.Member{
		Meta:        core.Meta{ID: s.newID(), GroupID: groupID, CreatedBy: actor.ID, CreatedAt: s.now().UTC()},
		UserID:      actor.ID,
		DisplayName: displayName(actor),
		Email:       actor.Email,
		Role:        role,
	}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	row, err := gateway.Encode(gateway.TableMembers, m)
	if err != nil {
		return core.Member{}, err
	}
	if _, err := s.gw.Insert(ctx, gateway.TableMembers, []gateway.Row{row}); err != nil {
		s.logError(ctx, "Failed to add member", err, groupID, actor.ID)
		return core.Member{}, fmt.Errorf("add member: %w", err)
	}
	return m, nil
}

func (s *GroupService) logError(ctx context.Context, msg string, err error, groupID, actorID string) {
	s.logger.ErrorContext(ctx, msg,
		log.FieldGroupID, groupID,
		log.FieldActorID, actorID,
		log.FieldError, err)
}

func displayName(a core.Actor) string {
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(a.Email, "@"); ok && local != "" {
		return local
	}
	return a.ID
}

func randomSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
