package repository

import (
	"context"
	"testing"

	"sessions-portal/model"
)

func TestUserRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := &model.User{Email: "  Jane.Doe@Example.com ", Username: "jane"}
	if err := f.users.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := f.users.GetByEmail(ctx, "JANE.DOE@example.com")
	if err != nil || got == nil {
		t.Fatalf("GetByEmail: %v %v", got, err)
	}
	if got.Email != "jane.doe@example.com" {
		t.Fatalf("email must be normalized: got=%q", got.Email)
	}
	exists, _ := f.users.ExistsByEmail(ctx, "jane.doe@example.com")
	if !exists {
		t.Fatalf("ExistsByEmail: want=true")
	}
	missing, err := f.users.GetByUsername(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("GetByUsername missing: want nil,nil got %v,%v", missing, err)
	}

	staff, err := f.users.FirstStaff(ctx)
	if err != nil || staff == nil || staff.ID != f.owner.ID {
		t.Fatalf("FirstStaff: want owner got %v err=%v", staff, err)
	}
}
