package main

import (
	"context"
	"fmt"
	"time"

	"collections/internal/collections"
	"collections/internal/profiles"
)

// seedLocalProfiles returns admin profiles for the given provider user ids so
// a local in-memory deployment has someone who can reach the admin screens.
func seedLocalProfiles(adminIDs []string) []profiles.Profile {
	now := time.Now().UTC()

	seeded := make([]profiles.Profile, 0, len(adminIDs))
	for i, id := range adminIDs {
		created := now.Add(time.Duration(i) * time.Minute)
		seeded = append(seeded, profiles.Profile{
			ID:        id,
			Username:  fmt.Sprintf("admin-%d", i+1),
			Role:      profiles.RoleAdmin,
			CreatedAt: created,
			UpdatedAt: created,
		})
	}
	return seeded
}

// demoItems are added, in order, to every seeded collection.
var demoItems = []collections.AddItemInput{
	{Type: collections.ItemTypeLink, Content: "https://go.dev/doc/effective_go"},
	{Type: collections.ItemTypeImage, Content: "https://go.dev/images/gophers/ladder.svg"},
	{Type: collections.ItemTypeLink, Content: "https://pkg.go.dev/net/http"},
}

// seedCollections gives each user a demo collection.
func seedCollections(ctx context.Context, svc *collections.Service, userIDs []string) error {
	for _, userID := range userIDs {
		collection, err := svc.Create(ctx, userID, collections.CreateCollectionInput{
			Title:       "Getting started",
			Description: "Sample collection seeded for local demos",
		})
		if err != nil {
			return fmt.Errorf("seed collection for %s: %w", userID, err)
		}
		for _, item := range demoItems {
			if _, err := svc.AddItem(ctx, collection.ID, userID, item); err != nil {
				return fmt.Errorf("seed item for %s: %w", userID, err)
			}
		}
	}
	return nil
}
