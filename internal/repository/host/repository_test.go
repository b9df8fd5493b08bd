package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	"github.com/aniladanir/guest-inbox-webhook/internal/testutil"
)

func TestFindHost(t *testing.T) {
	db := testutil.OpenDB(t)
	want := testutil.CreateHost(t, db, "pn-1", "abc")
	repo := NewHostRepository(db)
	ctx := context.Background()

	got, err := repo.FindByVerifyToken(ctx, "abc")
	if err != nil {
		t.Fatalf("FindByVerifyToken: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("got host %s, want %s", got.ID, want.ID)
	}

	got, err = repo.FindByPhoneNumberID(ctx, "pn-1")
	if err != nil {
		t.Fatalf("FindByPhoneNumberID: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("got host %s, want %s", got.ID, want.ID)
	}
	if got.APIVersion != domain.DefaultAPIVersion {
		t.Errorf("got api version %q, want %q", got.APIVersion, domain.DefaultAPIVersion)
	}
}

func TestFindHostNotFound(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.CreateHost(t, db, "pn-1", "abc")
	repo := NewHostRepository(db)
	ctx := context.Background()

	if _, err := repo.FindByVerifyToken(ctx, "wrong"); !errors.Is(err, domain.ErrHostNotFound) {
		t.Errorf("wrong token: got %v, want ErrHostNotFound", err)
	}
	if _, err := repo.FindByVerifyToken(ctx, ""); !errors.Is(err, domain.ErrHostNotFound) {
		t.Errorf("empty token: got %v, want ErrHostNotFound", err)
	}
	if _, err := repo.FindByPhoneNumberID(ctx, "pn-2"); !errors.Is(err, domain.ErrHostNotFound) {
		t.Errorf("unknown phone number id: got %v, want ErrHostNotFound", err)
	}
}

func TestDeactivatedHostIsNotRouted(t *testing.T) {
	db := testutil.OpenDB(t)
	host := testutil.CreateHost(t, db, "pn-1", "abc")
	if err := db.Model(host).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	repo := NewHostRepository(db)
	if _, err := repo.FindByPhoneNumberID(context.Background(), "pn-1"); !errors.Is(err, domain.ErrHostNotFound) {
		t.Fatalf("got %v, want ErrHostNotFound", err)
	}
}

func TestInactiveHostIsNotRouted(t *testing.T) {
	db := testutil.OpenDB(t)
	host := &domain.Host{
		Email:         "off@example.com",
		PhoneNumberID: "pn-off",
		AccessToken:   "token",
		VerifyToken:   "off",
		Active:        false,
	}
	if err := db.Create(host).Error; err != nil {
		t.Fatalf("create host: %v", err)
	}

	var stored domain.Host
	if err := db.First(&stored, "id = ?", host.ID).Error; err != nil {
		t.Fatalf("load host: %v", err)
	}
	if stored.Active {
		t.Fatal("host created inactive was stored as active")
	}

	repo := NewHostRepository(db)
	if _, err := repo.FindByPhoneNumberID(context.Background(), "pn-off"); !errors.Is(err, domain.ErrHostNotFound) {
		t.Fatalf("got %v, want ErrHostNotFound", err)
	}
	if _, err := repo.FindByVerifyToken(context.Background(), "off"); !errors.Is(err, domain.ErrHostNotFound) {
		t.Fatalf("got %v, want ErrHostNotFound", err)
	}
}
