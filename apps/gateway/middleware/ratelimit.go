package middleware

import (
	"net/http"

	sentinel "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/alibaba/sentinel-golang/core/flow"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"go-storefront/pkg/response"
)

// 资源名称
const (
	ResCheckout = "checkout_api"
	ResPayment  = "payment_api"
)

// InitSentinel 初始化限流规则. qps maps a resource to its threshold; zero
// or negative thresholds leave the resource unlimited.
func InitSentinel(qps map[string]float64) error {
	if err := sentinel.InitDefault(); err != nil {
		return err
	}

	rules := make([]*flow.Rule, 0, len(qps))
	for res, threshold := range qps {
		if threshold <= 0 {
			continue
		}
		rules = append(rules, &flow.Rule{
			Resource:               res,
			TokenCalculateStrategy: flow.Direct, // 直接计数
			ControlBehavior:        flow.Reject, // 直接拒绝
			Threshold:              threshold,
			StatIntervalInMs:       1000, // 统计周期 1秒
		})
		log.Info().Str("resource", res).Float64("qps", threshold).Msg("sentinel rule loaded")
	}
	_, err := flow.LoadRules(rules)
	return err
}

// RateLimit guards the handlers after it with the sentinel resource res.
func RateLimit(res string) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, b := sentinel.Entry(res, sentinel.WithTrafficType(base.Inbound))
		if b != nil {
			// 被限流了
			response.Error(c, http.StatusTooManyRequests, "too many requests, please retry later")
			return
		}
		defer e.Exit()
		c.Next()
	}
}
