package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailguard/backend/internal/storage"
)

// 就绪检查拒绝服务的 goroutine 上限
const goroutineThreshold = 2000

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.SendLog
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.SendLog, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 发送记录存储检查
	hc.health.AddReadinessCheck("send-log", func() error {
		return hc.store.Health()
	})

	// goroutine 数量检查
	hc.health.AddLivenessCheck("goroutine-count",
		healthcheck.GoroutineCountCheck(goroutineThreshold))
}

// LiveHandler 返回存活检查处理器
func (hc *HealthChecker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 返回就绪检查处理器
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// CheckHealth 执行健康检查并返回各组件状态
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["send_log"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["send_log"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
