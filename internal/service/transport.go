package service

import (
	"context"

	"go.uber.org/zap"

	"mailguard/backend/internal/domain"
)

// Transport 实际投递通道的抽象
//
// 网关只负责放行或拦截，真正的投递由调用方注入的通道完成。
type Transport interface {
	Deliver(ctx context.Context, envelope domain.SanitizedEnvelope) error
}

// LogTransport 将投递动作写入日志的通道，用于本地开发与演示部署
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport 创建日志投递通道
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Deliver 将净化后的信封记录到日志
func (t *LogTransport) Deliver(ctx context.Context, envelope domain.SanitizedEnvelope) error {
	t.logger.Info("email delivered",
		zap.String("to", envelope.To),
		zap.String("from", envelope.From),
		zap.String("subject", envelope.Subject),
		zap.Int("body_bytes", len(envelope.Body)),
		zap.String("attachment", envelope.AttachmentName),
	)
	return nil
}
