package discovery

import (
	"fmt"
	"net"

	"github.com/hashicorp/consul/api"
	_ "github.com/mbobakov/grpc-consul-resolver" // registers the consul:// resolver
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Registration describes one service instance announced to Consul.
type Registration struct {
	Name string
	Port int
	// Check is "http" (GET /healthz) or "grpc" (grpc.health.v1).
	Check string
	Tags  []string
}

// Registry registers and deregisters service instances with a Consul agent.
type Registry struct {
	client *api.Client
	ip     string
	ids    []string
}

func NewRegistry(consulAddr string) (*Registry, error) {
	config := api.DefaultConfig()
	config.Address = consulAddr
	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	// 获取本机 IP (非 Loopback)
	localIP, err := getOutboundIP()
	if err != nil {
		return nil, err
	}
	return &Registry{client: client, ip: localIP}, nil
}

// Register 将服务注册到 Consul
func (r *Registry) Register(reg Registration) error {
	// ID 必须唯一，通常使用 "服务名-IP-端口"
	serviceID := fmt.Sprintf("%s-%s-%d", reg.Name, r.ip, reg.Port)
	target := fmt.Sprintf("%s:%d", r.ip, reg.Port)

	check := &api.AgentServiceCheck{
		Interval:                       "10s",
		Timeout:                        "5s",
		DeregisterCriticalServiceAfter: "30s", // 挂了30秒后自动注销
	}
	switch reg.Check {
	case "grpc":
		check.GRPC = target
		check.GRPCUseTLS = false
	default:
		check.HTTP = fmt.Sprintf("http://%s/healthz", target)
	}

	registration := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    reg.Name,
		Port:    reg.Port,
		Address: r.ip,
		Tags:    reg.Tags,
		Check:   check,
	}

	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return err
	}
	r.ids = append(r.ids, serviceID)

	log.Info().Str("service", reg.Name).Str("id", serviceID).Str("addr", target).Msg("service registered")
	return nil
}

// Deregister removes every instance registered through r.
func (r *Registry) Deregister() {
	for _, id := range r.ids {
		if err := r.client.Agent().ServiceDeregister(id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("consul deregister failed")
		}
	}
	r.ids = nil
}

// Dial opens a round-robin client connection to every healthy instance of
// service known to the Consul agent at consulAddr.
func Dial(consulAddr, service string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy": "round_robin"}`),
	}, opts...)
	return grpc.NewClient(fmt.Sprintf("consul://%s/%s?wait=14s&healthy=true", consulAddr, service), opts...)
}

// getOutboundIP 获取本机对外 IP
// 因为如果是 Docker 或局域网，不能注册 127.0.0.1，否则网关找不到
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
