package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/subflow-io/subflow/internal/lifecycle"
	"github.com/subflow-io/subflow/internal/sigstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the signature store to worker processes",
	Long: `serve opens the signature database and answers store requests over two
sockets: a push socket that accepts signature writes without replying, and a
request socket for everything else. Workers connect with the same pair of
addresses.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&cfgOverrides.storePath, "db", "", "signature database file")
	serveCmd.Flags().StringVar(&cfgOverrides.pushAddr, "push", "", "push socket address")
	serveCmd.Flags().StringVar(&cfgOverrides.reqAddr, "req", "", "request socket address")
	rootCmd.AddCommand(serveCmd)
}

// cfgOverrides holds flag values applied on top of the configuration file.
var cfgOverrides struct {
	storePath string
	pushAddr  string
	reqAddr   string
}

func applyOverrides() {
	if cfgOverrides.storePath != "" {
		cfg.StorePath = cfgOverrides.storePath
	}
	if cfgOverrides.pushAddr != "" {
		cfg.StorePushAddr = cfgOverrides.pushAddr
	}
	if cfgOverrides.reqAddr != "" {
		cfg.StoreReqAddr = cfgOverrides.reqAddr
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyOverrides()
	if cfg.StorePath == "" {
		return fmt.Errorf("no signature database configured (use --db or store_path)")
	}
	if cfg.StorePushAddr == "" || cfg.StoreReqAddr == "" {
		return fmt.Errorf("both push and request addresses are required")
	}

	db, err := sql.Open("sqlite", cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.StorePath, err)
	}
	store, err := sigstore.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	pushLn, err := net.Listen(cfg.StoreNetwork, cfg.StorePushAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.StorePushAddr, err)
	}
	reqLn, err := net.Listen(cfg.StoreNetwork, cfg.StoreReqAddr)
	if err != nil {
		pushLn.Close()
		return fmt.Errorf("listen %s: %w", cfg.StoreReqAddr, err)
	}

	svc := sigstore.NewService(store, slog.Default())
	svc.Start(pushLn, reqLn)
	defer svc.Close()

	slog.Info("signature store serving",
		slog.String("db", cfg.StorePath),
		slog.String("push", pushLn.Addr().String()),
		slog.String("req", reqLn.Addr().String()),
	)

	ctx, cancel := lifecycle.NotifyCancel(cmd.Context())
	defer cancel()
	<-ctx.Done()

	slog.Info("signature store shutting down")
	return nil
}
