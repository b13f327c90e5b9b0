package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palaver/internal/api"
	"palaver/internal/chat"
	"palaver/internal/commands"
	"palaver/internal/config"
	"palaver/internal/directory"
	"palaver/internal/friends"
	"palaver/internal/group"
	"palaver/internal/http"
	"palaver/internal/presence"
	"palaver/internal/storage"
	"palaver/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	addUser := flag.String("add-user", "", "Username to create (registers the user and prints its ID)")
	displayName := flag.String("display-name", "", "Display name for -add-user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(*addUser, *displayName, cfg)
	}

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	dir := directory.New(ctx, store, cfg.DirectoryCacheTTL)
	groups := group.NewAuthority(store)
	chatSvc := chat.NewService(store, groups, dir)
	tracker := presence.NewTracker()
	graph := friends.NewGraph(store, dir)

	hub := ws.NewHub(chatSvc, groups, tracker, dir, cfg.SendBuffer)
	wsServer := ws.NewServer(hub)
	handlers := api.New(hub, chatSvc, groups, graph, dir, tracker)

	apiServer := http.NewAPIServer(handlers, wsServer, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
