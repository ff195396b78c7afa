package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tarndt/wsweb/internal/echoserver"
	"github.com/tarndt/wsweb/internal/wslistener"
)

type serverConfig struct {
	HTTPAddr  string
	EchoAddr  string
	SpeedAddr string
	StaticDir string
	CertFile  string
	KeyFile   string
	LogLevel  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the wsweb demo: static files, gRPC over websocket, echo and speed test endpoints",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := serverConfig{
				HTTPAddr:  v.GetString("http-addr"),
				EchoAddr:  v.GetString("echo-addr"),
				SpeedAddr: v.GetString("speed-addr"),
				StaticDir: v.GetString("static-dir"),
				CertFile:  v.GetString("cert"),
				KeyFile:   v.GetString("key"),
				LogLevel:  v.GetString("log-level"),
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("http-addr", ":8080", "Address for static files, /grpc-proxy and /metrics")
	flags.String("echo-addr", "127.0.0.1:8765", "Address of the echo websocket server")
	flags.String("speed-addr", "127.0.0.1:8766", "Address of the speed test websocket server")
	flags.String("static-dir", "./static", "Directory of static files (wasm client)")
	flags.String("cert", "", "TLS certificate for gRPC (plaintext when empty)")
	flags.String("key", "", "TLS key for gRPC")
	flags.String("log-level", "info", "Log level")

	v.SetEnvPrefix("WSWEB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, cfg serverConfig) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("Invalid log level %q; Details: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	//App context setup
	if ctx == nil {
		ctx = context.Background()
	}
	appCtx, appCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer appCancel()

	//Metrics
	reg := prometheus.NewRegistry()
	metrics, err := echoserver.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("Could not register metrics; Details: %w", err)
	}
	echo := echoserver.New(log.WithField("component", "echoserver"), metrics)

	//Setup HTTP / Websocket server
	router := http.NewServeMux()
	wsl := wslistener.New(appCtx, log.WithField("component", "wslistener"))
	router.HandleFunc("/grpc-proxy", wsl.HTTPAccept)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

	servers := []*http.Server{
		{Addr: cfg.HTTPAddr, Handler: router},
		{Addr: cfg.EchoAddr, Handler: http.HandlerFunc(echo.Echo)},
		{Addr: cfg.SpeedAddr, Handler: http.HandlerFunc(echo.Speed)},
	}

	//gRPC setup
	var opts []grpc.ServerOption
	if cfg.CertFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("Failed to contruct gRPC TLS credentials from %q and %q; Details: %w", cfg.CertFile, cfg.KeyFile, err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	grpcServer := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	grp, grpCtx := errgroup.WithContext(appCtx)
	for _, srv := range servers {
		srv := srv
		grp.Go(func() error {
			log.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP Listen and Serve on %q failed; Details: %w", srv.Addr, err)
			}
			return nil
		})
	}
	grp.Go(func() error {
		if err := grpcServer.Serve(wsl); err != nil && grpCtx.Err() == nil {
			return fmt.Errorf("Failed to serve gRPC connections; Details: %w", err)
		}
		return nil
	})

	//Shutdown
	grp.Go(func() error {
		<-grpCtx.Done()
		log.Info("Shutting down")
		healthServer.Shutdown()
		return shutdown(servers, grpcServer, wsl)
	})
	return grp.Wait()
}

func shutdown(servers []*http.Server, grpcServer *grpc.Server, wsl net.Listener) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*2)
	defer shutdownCancel()

	grpcShutdown := make(chan struct{}, 1)
	go func() {
		grpcServer.GracefulStop()
		grpcShutdown <- struct{}{}
	}()

	var err error
	for _, srv := range servers {
		err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	}
	select {
	case <-grpcShutdown:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	return multierr.Append(err, wsl.Close())
}
