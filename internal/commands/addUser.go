package commands

import (
	"context"
	"fmt"

	"palaver/internal/config"
	"palaver/internal/directory"
	"palaver/internal/storage"
)

// AddUser registers a user straight against the database, for seeding an
// instance before the server is running.
func AddUser(userName, displayName string, cfg *config.Config) error {
	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := directory.New(ctx, store, cfg.DirectoryCacheTTL)
	user, err := dir.Register(userName, displayName)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	fmt.Printf("\nUser Created Successfully!\n")
	fmt.Printf("ID:           %s\n", user.ID)
	fmt.Printf("Username:     %s\n", user.UserName)
	fmt.Printf("Display name: %s\n\n", user.DisplayName)
	fmt.Println("Pass the ID in the X-User-ID header to act as this user.")
	return nil
}
