// RaspTerm: browser terminal and system dashboard for a Raspberry Pi.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/vesaa/raspterm/internal/auth"
	"github.com/vesaa/raspterm/internal/broadcast"
	"github.com/vesaa/raspterm/internal/config"
	"github.com/vesaa/raspterm/internal/docker"
	"github.com/vesaa/raspterm/internal/realtime"
	"github.com/vesaa/raspterm/internal/server"
	"github.com/vesaa/raspterm/internal/store"
	"github.com/vesaa/raspterm/internal/telemetry"
	"github.com/vesaa/raspterm/internal/terminal"
)

const asciiLogo = `
 ██████╗  █████╗ ███████╗██████╗ ████████╗███████╗██████╗ ███╗   ███╗
 ██╔══██╗██╔══██╗██╔════╝██╔══██╗╚══██╔══╝██╔════╝██╔══██╗████╗ ████║
 ██████╔╝███████║███████╗██████╔╝   ██║   █████╗  ██████╔╝██╔████╔██║
 ██╔══██╗██╔══██║╚════██║██╔═══╝    ██║   ██╔══╝  ██╔══██╗██║╚██╔╝██║
 ██║  ██║██║  ██║███████║██║        ██║   ███████╗██║  ██║██║ ╚═╝ ██║
 ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝        ╚═╝   ╚══════╝╚═╝  ╚═╝╚═╝     ╚═╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo, "\n")
	fmt.Printf("  ► RaspTerm %s  |  Mode: %s\n\n", version, mode)
}

func main() {
	root := &cobra.Command{
		Use:          "raspterm",
		Short:        "RaspTerm: web terminal and system dashboard for a Raspberry Pi",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RaspTerm daemon (REST API, websocket terminals, dashboard)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			printBanner(cfg.Environment)
			return serve(cfg)
		},
	}

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			subject, _ := cmd.Flags().GetString("subject")
			tok, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiration()).Issue(subject)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	tokenCmd.Flags().String("subject", "admin", "userId claim of the issued token")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print RaspTerm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("RaspTerm %s\n", version)
		},
	}

	root.AddCommand(serveCmd, tokenCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()
	if n, err := db.Prune(ctx, cfg.StatsRetentionDays); err != nil {
		log.Printf("[store] startup prune: %v", err)
	} else if n > 0 {
		log.Printf("[store] pruned %d records older than %d days", n, cfg.StatsRetentionDays)
	}

	bc := broadcast.New(telemetry.NewHostSampler(), db, broadcast.Options{
		PushEvery:    cfg.StatsInterval(),
		PersistEvery: cfg.PersistInterval(),
	})
	bc.Start()
	defer bc.Stop()

	terms := terminal.NewManager(terminal.Options{
		Shell:      cfg.TerminalShell,
		StaleAfter: time.Duration(cfg.TerminalStaleAfter) * time.Minute,
	})
	defer terms.CloseAll()
	go terms.RunSweeper(ctx, time.Duration(cfg.TerminalSweepEvery)*time.Minute)

	hub := realtime.NewHub(realtime.NewRouter(terms, bc), cfg.ClientURL)

	passwords, err := auth.NewPasswords(cfg.AccessPassword)
	if err != nil {
		return fmt.Errorf("hashing access password: %w", err)
	}

	deps := server.Deps{
		Tokens:    auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiration()),
		Passwords: passwords,
		History:   db,
		Scripts:   db,
		Snapshots: bc,
		Sessions:  terms,
		WS:        hub,
	}
	if dc, err := docker.New(cfg.DockerHost); err != nil {
		log.Printf("[docker] unavailable: %v", err)
	} else {
		defer dc.Close()
		deps.Containers = dc
	}

	gin.SetMode(gin.ReleaseMode)
	engine := server.New(deps, server.Options{
		Production:  cfg.IsProduction(),
		ClientURL:   cfg.ClientURL,
		LoginWindow: cfg.LoginWindow(),
		LoginMax:    cfg.LoginRateMax,
	}).Engine()

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	fmt.Printf("  ✓ Dashboard + API → http://%s\n", addr)
	fmt.Printf("  ✓ Websocket       → ws://%s/ws\n", addr)
	fmt.Printf("  ✓ Stats push every %s, persisted every %s\n\n", cfg.StatsInterval(), cfg.PersistInterval())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println("\n  → Shutting down gracefully…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Printf("[realtime] shutdown: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
	return nil
}
