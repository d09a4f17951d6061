package profile

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/db/dbtest"
	"storefront/internal/domain"
)

func TestPostgres_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(ctx, t)
	repo := NewPostgres(pool, nil)

	created, err := repo.Create(ctx, domain.Profile{Username: "alice", PasswordHash: "hash", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 || !created.Balance.IsZero() {
		t.Fatalf("unexpected profile %+v", created)
	}

	if _, err := repo.Create(ctx, domain.Profile{Username: "alice", PasswordHash: "other"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if byName.ID != created.ID || byName.PasswordHash != "hash" {
		t.Fatalf("unexpected profile %+v", byName)
	}

	created.FullName = "Alice Liddell"
	created.Phone = "5550101"
	updated, err := repo.Update(ctx, *created)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.FullName != "Alice Liddell" || updated.Phone != "5550101" {
		t.Fatalf("unexpected update %+v", updated)
	}

	if err := repo.UpdatePassword(ctx, 999, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
