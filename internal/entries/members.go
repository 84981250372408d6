package entries

import (
	"context"
	"fmt"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// MemberRepository mirrors the members of a group in join order.
type MemberRepository struct {
	*Repository[core.Member, *core.Member]
}

func NewMemberRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *MemberRepository {
	return &MemberRepository{newRepository[core.Member, *core.Member](gw, logger, spec[core.Member]{
		table: gateway.TableMembers,
		order: func(q gateway.Query) gateway.Query { return q.OrderBy(gateway.ColCreatedAt) },
		less: func(a, b *core.Member) bool {
			return lessBy(cmpTime(a.CreatedAt, b.CreatedAt), cmpFold(a.DisplayName, b.DisplayName))
		},
	}, buildOptions(opts))}
}

// ByUser finds the membership of user.
func (r *MemberRepository) ByUser(user string) (core.Member, bool) {
	found := r.Filter(func(m core.Member) bool { return m.UserID == user })
	if len(found) == 0 {
		return core.Member{}, false
	}
	return found[0], true
}

func (r *MemberRepository) IsMember(user string) bool {
	_, ok := r.ByUser(user)
	return ok
}

// Role returns the role of user in the group.
func (r *MemberRepository) Role(user string) (core.Role, bool) {
	m, ok := r.ByUser(user)
	return m.Role, ok
}

func (r *MemberRepository) Owners() []core.Member {
	return r.Filter(func(m core.Member) bool { return m.Role == core.RoleOwner })
}

// Remove deletes a membership. The last owner cannot be removed.
func (r *MemberRepository) Remove(ctx context.Context, actor, memberID string) error {
	if m, ok := r.Find(memberID); ok && m.Role == core.RoleOwner && len(r.Owners()) == 1 {
		return fmt.Errorf("%w: cannot remove the last owner", core.ErrForbidden)
	}
	return r.Delete(ctx, actor, memberID)
}

// SetRole changes a member's role. The last owner cannot be demoted.
func (r *MemberRepository) SetRole(ctx context.Context, actor, memberID string, role core.Role) (core.Member, error) {
	if !role.Valid() {
		return core.Member{}, core.ErrInvalidRole
	}
	if m, ok := r.Find(memberID); ok && m.Role == core.RoleOwner && role != core.RoleOwner && len(r.Owners()) == 1 {
		return core.Member{}, fmt.Errorf("%w: cannot demote the last owner", core.ErrForbidden)
	}
	return r.Update(ctx, actor, memberID, gateway.Row{"role": string(role)})
}
