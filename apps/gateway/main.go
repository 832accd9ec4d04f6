// Command gateway serves the storefront JSON API and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"go-storefront/apps/gateway/middleware"
	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	"go-storefront/apps/user"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/config"
	"go-storefront/pkg/database"
	"go-storefront/pkg/discovery"
	"go-storefront/pkg/jwt"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/mq"
	"go-storefront/pkg/search"
	"go-storefront/pkg/tracer"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped")
	}
}

func run(configPath string) error {
	c, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(c.Log.Level, c.Log.Pretty, c.Service.Name)

	tp, err := tracer.InitTracer(c.Service.Name, c.Tracing.Endpoint)
	if err != nil {
		return err
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	db, err := database.Open(c.Database, c.Mysql)
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(db, usermodel.All(), productmodel.All(), ordermodel.All()); err != nil {
		return err
	}

	rdb, err := database.InitRedis(c.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// 消息队列: optional, events go to the log without a broker
	var events mq.Publisher = mq.LogPublisher{}
	if c.RabbitMQ.URL != "" {
		pub, err := mq.NewRabbitPublisher(c.RabbitMQ.URL, c.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer pub.Close()
		events = pub
	}

	d := deps{
		DB:        db,
		Redis:     rdb,
		Tokens:    jwt.NewManager(c.JWT.Secret, c.JWT.TTL, c.JWT.Issuer),
		Events:    events,
		Media:     user.NewLocalStorage(c.Media.Root),
		MediaRoot: c.Media.Root,
		MediaURL:  c.Media.URLPrefix,
	}
	if c.Elastic.URL != "" {
		idx, err := search.NewIndex(c.Elastic.URL, c.Elastic.Index)
		if err != nil {
			return err
		}
		if err := idx.EnsureIndex(context.Background()); err != nil {
			return err
		}
		d.Search = idx
	}

	if err := middleware.InitSentinel(map[string]float64{
		middleware.ResCheckout: c.RateLimit.CheckoutQPS,
		middleware.ResPayment:  c.RateLimit.PaymentQPS,
	}); err != nil {
		return fmt.Errorf("init sentinel: %w", err)
	}

	if c.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := newServer(d)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Service.Port),
		Handler:           srv.router(c.Service.Name),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC 健康检查
	healthSrv := health.NewServer()
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	healthSrv.SetServingStatus(c.Service.Name, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", c.Service.GrpcPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errc <- err
		}
	}()

	// 注册到 Consul
	var registry *discovery.Registry
	if c.Consul.Enabled {
		registry, err = discovery.NewRegistry(c.Consul.Address)
		if err != nil {
			return fmt.Errorf("consul client: %w", err)
		}
		if err := registry.Register(discovery.Registration{Name: c.Service.Name, Port: c.Service.Port, Check: "http", Tags: []string{"http"}}); err != nil {
			log.Warn().Err(err).Msg("consul http registration failed")
		}
		if err := registry.Register(discovery.Registration{Name: c.Service.Name + "-grpc", Port: c.Service.GrpcPort, Check: "grpc", Tags: []string{"grpc"}}); err != nil {
			log.Warn().Err(err).Msg("consul grpc registration failed")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errc:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	if registry != nil {
		registry.Deregister()
	}
	healthSrv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()
	return nil
}
