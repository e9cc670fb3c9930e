package security

import (
	"fmt"
	"strings"

	"mailguard/backend/internal/domain"
)

// EmailValidationGate 出站邮件校验闸口
//
// 组合扫描器与净化器，对单个字段或整封信封给出校验结论。
// 无共享可变状态，可并发调用。
//
// 调用方契约：IsValid 为 false 时必须中止发送；IsValid 为 true 但
// Findings 非空时，必须使用 SanitizedValue 而不是原始输入。
type EmailValidationGate struct {
	scanner   *ContentThreatScanner
	sanitizer *Sanitizer
}

// NewEmailValidationGate 创建校验闸口
func NewEmailValidationGate() *EmailValidationGate {
	return &EmailValidationGate{
		scanner:   NewContentThreatScanner(),
		sanitizer: NewSanitizer(),
	}
}

// ValidateField 校验并净化单个字段
func (g *EmailValidationGate) ValidateField(value string, kind domain.FieldKind, opts domain.ValidationOptions) domain.ValidationVerdict {
	findings := g.scanner.Scan(value, kind, opts)
	sanitized, extra := g.sanitizer.Sanitize(value, kind, opts)
	findings = append(findings, extra...)

	risk := domain.MaxFindingSeverity(findings)
	return domain.ValidationVerdict{
		IsValid:        risk != domain.SeverityCritical,
		SanitizedValue: sanitized,
		Findings:       findings,
		RiskLevel:      risk,
		CheckedAt:      scanTimestamp(),
	}
}

// ValidateEmailAddress 校验并净化单个邮箱地址
func (g *EmailValidationGate) ValidateEmailAddress(address string) domain.ValidationVerdict {
	return g.ValidateField(address, domain.FieldAddress, domain.DefaultValidationOptions())
}

// ValidateFullEmail 独立校验信封的每个字段并汇总
//
// 信封级 RiskLevel 取所有字段发现中的最高严重级别；IsValid 当且仅当
// 不存在 Critical 发现。SanitizedValue 是各字段净化值的结构化记录
// （JSON），调用方据此重建安全信封。
func (g *EmailValidationGate) ValidateFullEmail(envelope domain.EmailEnvelope, opts domain.ValidationOptions) domain.ValidationVerdict {
	var findings []domain.ThreatFinding
	sanitized := domain.SanitizedEnvelope{}

	collect := func(value string, kind domain.FieldKind) string {
		verdict := g.ValidateField(value, kind, opts)
		findings = append(findings, verdict.Findings...)
		return verdict.SanitizedValue
	}

	sanitized.To = collect(envelope.To, domain.FieldAddress)
	if envelope.From != "" {
		sanitized.From = collect(envelope.From, domain.FieldAddress)
	}
	sanitized.Subject = collect(envelope.Subject, domain.FieldSubject)
	sanitized.Body = collect(envelope.Body, domain.FieldBody)
	if envelope.AttachmentName != "" {
		if opts.AllowAttachments {
			sanitized.AttachmentName = collect(envelope.AttachmentName, domain.FieldAttachment)
		} else {
			// 策略禁止附件时不保留附件名，并记录一条发现
			findings = append(findings, domain.ThreatFinding{
				Category:    domain.CategoryMalware,
				Severity:    domain.SeverityHigh,
				Description: "attachment present but attachments are not permitted",
				PatternID:   "attachment-policy",
				Field:       string(domain.FieldAttachment),
			})
		}
	}

	risk := domain.MaxFindingSeverity(findings)
	return domain.ValidationVerdict{
		IsValid:        risk != domain.SeverityCritical,
		SanitizedValue: sanitized.Encode(),
		Findings:       findings,
		RiskLevel:      risk,
		CheckedAt:      scanTimestamp(),
	}
}

// GenerateSecurityReport 生成面向运维的多行安全报告
//
// 逐条列出发现的类别、级别与描述，用于日志和告警，不面向最终用户。
func GenerateSecurityReport(verdict domain.ValidationVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "email security report (catalog %s)\n", CatalogVersion)
	fmt.Fprintf(&b, "risk level: %s, valid: %t, findings: %d\n", verdict.RiskLevel, verdict.IsValid, len(verdict.Findings))
	for i, f := range verdict.Findings {
		fmt.Fprintf(&b, "  %d. [%s/%s] field=%s pattern=%s: %s\n",
			i+1, f.Category, f.Severity, f.Field, f.PatternID, f.Description)
	}
	if len(verdict.Findings) == 0 {
		b.WriteString("  no findings\n")
	}
	return b.String()
}
