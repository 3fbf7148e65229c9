package testsupport

import (
	"context"
	"testing"

	"tottales/internal/config"
	"tottales/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedChild inserts a child profile for tests using the provided store.
func SeedChild(t testing.TB, st *store.Store, name string, age int, photoURLs ...string) *store.Child {
	t.Helper()

	child, err := st.CreateChild(context.Background(), &store.Child{
		UserID:    "user-test",
		Name:      name,
		Age:       age,
		PhotoURLs: photoURLs,
	})
	if err != nil {
		t.Fatalf("store.CreateChild: %v", err)
	}
	return child
}

// SeedTheme inserts a theme for tests using the provided store.
func SeedTheme(t testing.TB, st *store.Store, name, description string) *store.Theme {
	t.Helper()

	theme, err := st.CreateTheme(context.Background(), &store.Theme{
		Name:        name,
		Description: description,
	})
	if err != nil {
		t.Fatalf("store.CreateTheme: %v", err)
	}
	return theme
}

// SeedArtStyle inserts an art style for tests using the provided store.
func SeedArtStyle(t testing.TB, st *store.Store, name, description string) *store.ArtStyle {
	t.Helper()

	style, err := st.CreateArtStyle(context.Background(), &store.ArtStyle{
		Name:        name,
		Description: description,
	})
	if err != nil {
		t.Fatalf("store.CreateArtStyle: %v", err)
	}
	return style
}
