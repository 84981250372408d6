package entries

import (
	"context"
	"errors"
	"testing"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/gateway/memory"
)

func TestMemberRoles(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	repo := NewMemberRepository(gw, discard(), testOptions()...)
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	owner, err := repo.Create(ctx, "u1", core.Member{UserID: "u1", DisplayName: "Anna", Role: core.RoleOwner})
	if err != nil {
		t.Fatal(err)
	}
	member, err := repo.Create(ctx, "u1", core.Member{UserID: "u2", DisplayName: "Bruno", Role: core.RoleMember})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Create(ctx, "u1", core.Member{UserID: "u2", Role: core.RoleMember}); !errors.Is(err, gateway.ErrConflict) {
		t.Fatalf("expected duplicate membership to conflict, got %v", err)
	}

	if !repo.IsMember("u2") || repo.IsMember("u3") {
		t.Fatalf("membership lookup is wrong")
	}
	if role, _ := repo.Role("u1"); role != core.RoleOwner {
		t.Fatalf("expected owner, got %s", role)
	}

	if err := repo.Remove(ctx, "u1", owner.ID); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected last owner removal to be refused, got %v", err)
	}
	if _, err := repo.SetRole(ctx, "u1", owner.ID, core.RoleMember); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected last owner demotion to be refused, got %v", err)
	}
	if _, err := repo.SetRole(ctx, "u1", member.ID, "admin"); !errors.Is(err, core.ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}

	if _, err := repo.SetRole(ctx, "u1", member.ID, core.RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := repo.Remove(ctx, "u1", owner.ID); err != nil {
		t.Fatalf("remove with another owner present: %v", err)
	}
	if repo.Len() != 1 || len(repo.Owners()) != 1 {
		t.Fatalf("expected one owner left, len=%d", repo.Len())
	}
}
