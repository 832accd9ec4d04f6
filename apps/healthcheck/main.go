// Command healthcheck resolves the storefront gRPC endpoint through Consul
// and probes its health service. It exits non-zero unless SERVING.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"go-storefront/pkg/config"
	"go-storefront/pkg/discovery"
	"go-storefront/pkg/logger"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	timeout := flag.Duration("timeout", 5*time.Second, "probe timeout")
	flag.Parse()

	c, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Init(c.Log.Level, c.Log.Pretty, "healthcheck")

	os.Exit(probe(c, *timeout))
}

func probe(c *config.Config, timeout time.Duration) int {
	target := c.Service.Name + "-grpc"
	conn, err := discovery.Dial(c.Consul.Address, target, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	if err != nil {
		log.Error().Err(err).Str("service", target).Msg("dial")
		return 2
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: c.Service.Name})
	if err != nil {
		log.Error().Err(err).Str("service", target).Msg("health check failed")
		return 1
	}
	log.Info().Str("service", target).Str("status", resp.GetStatus().String()).Msg("health check")
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}
