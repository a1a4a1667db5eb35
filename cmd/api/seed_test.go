package main

import (
	"context"
	"testing"

	"collections/internal/collections"
	"collections/internal/profiles"
)

func TestSeedLocalProfilesCreatesAdmins(t *testing.T) {
	seeded := seedLocalProfiles([]string{"user-a", "user-b"})
	if len(seeded) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(seeded))
	}
	for i, profile := range seeded {
		if !profile.IsAdmin() {
			t.Fatalf("expected profile %d to be admin, got %q", i, profile.Role)
		}
	}
	if seeded[1].Username != "admin-2" {
		t.Fatalf("unexpected username %q", seeded[1].Username)
	}

	repo := profiles.NewInMemoryRepository(seeded)
	got, err := repo.Get(context.Background(), "user-b")
	if err != nil || !got.IsAdmin() {
		t.Fatalf("expected seeded admin to be stored, got %+v (%v)", got, err)
	}
}

func TestSeedCollectionsAddsDemoItems(t *testing.T) {
	svc := collections.NewService(collections.NewInMemoryRepository())
	if err := seedCollections(context.Background(), svc, []string{"user-a"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	list, err := svc.List(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || len(list[0].Items) != len(demoItems) {
		t.Fatalf("unexpected seeded collections %+v", list)
	}
	if list[0].Items[0].Content != demoItems[0].Content {
		t.Fatalf("expected demo items in order, got %+v", list[0].Items)
	}
}
