// cmd/toshi is the node entrypoint. One binary serves any role in the
// cluster; topology comes entirely from configuration.
//
// Example — single node:
//
//	./toshi --data-path /var/toshi/node1
//
// Example — 2-node cluster:
//
//	./toshi --port 8080 --rpc-port 8081 --data-path /tmp/n1 \
//	        --peers http://localhost:9081
//	./toshi --port 9080 --rpc-port 9081 --data-path /tmp/n2 \
//	        --peers http://localhost:8081
//
// Peers are addressed by their RPC listener. Settings may also come from
// toshi.yaml or TOSHI_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Jason-Cooke/Toshi/internal/api"
	"github.com/Jason-Cooke/Toshi/internal/catalog"
	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/search"
)

func main() {
	root := &cobra.Command{
		Use:           "toshi",
		Short:         "Distributed full-text search node",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	flags := root.Flags()
	flags.String("host", "0.0.0.0", "Listen host")
	flags.Int("port", 8080, "Public HTTP port")
	flags.Int("rpc-port", 8081, "Peer RPC port")
	flags.String("data-path", "data", "Directory holding all local indexes")
	flags.StringSlice("peers", nil, "Peer RPC base URIs (scheme://host:port)")
	flags.Duration("peer-timeout", cluster.DefaultTimeout, "Deadline per peer call")
	flags.Duration("refresh-interval", 30*time.Second, "Remote membership refresh interval")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.SetConfigName("toshi")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("TOSHI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	level, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(level)
	log, err := logCfg.Build()
	if err != nil {
		return err
	}
	defer log.Sync()

	cat := catalog.New(viper.GetString("data-path"), log)
	if err := cat.LoadManaged(); err != nil {
		return err
	}
	defer cat.Close()

	peerTimeout := viper.GetDuration("peer-timeout")
	for _, uri := range viper.GetStringSlice("peers") {
		cat.RegisterPeer(cluster.NewPeer(uri, peerTimeout, log))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat.RefreshRemote(ctx)
	go refreshLoop(ctx, cat, viper.GetDuration("refresh-interval"))

	executor := search.NewExecutor(cat, log)

	gin.SetMode(gin.ReleaseMode)

	public := gin.New()
	public.Use(api.Logger(log.Named("http")), api.Recovery(log.Named("http")))
	api.NewHandler(cat, executor, log.Named("http")).Register(public)

	internal := gin.New()
	internal.Use(api.Logger(log.Named("rpc")), api.Recovery(log.Named("rpc")))
	api.NewRpcEndpoint(cat, log.Named("rpc")).Register(internal)

	host := viper.GetString("host")
	publicSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, viper.GetInt("port")),
		Handler:      public,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	rpcSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, viper.GetInt("rpc-port")),
		Handler:      internal,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 2)
	go serve(publicSrv, "public", log, errCh)
	go serve(rpcSrv, "rpc", log, errCh)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := publicSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("public server shutdown", zap.Error(err))
	}
	if err := rpcSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("rpc server shutdown", zap.Error(err))
	}
	return nil
}

func serve(srv *http.Server, name string, log *zap.Logger, errCh chan<- error) {
	log.Info("listening", zap.String("server", name), zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}

// refreshLoop keeps the remote membership map converging while the node
// runs. Peers that were unreachable in one round are retried on the next.
func refreshLoop(ctx context.Context, cat *catalog.Catalog, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cat.RefreshRemote(ctx)
		}
	}
}
