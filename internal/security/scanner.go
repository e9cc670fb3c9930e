package security

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"mailguard/backend/internal/domain"
)

// ContentThreatScanner 基于规则目录对单个字段做威胁扫描
//
// 扫描器是纯函数式的：没有共享可变状态，可并发调用。检测为确定性的
// 模式匹配，延迟有界且不依赖网络，属于建议性的启发式层，需要与
// 服务商侧的防护配合使用，不能单独作为安全保证。
type ContentThreatScanner struct {
	rules []PatternRule
}

// NewContentThreatScanner 创建使用内置规则目录的扫描器
func NewContentThreatScanner() *ContentThreatScanner {
	return &ContentThreatScanner{rules: PatternCatalog()}
}

// Scan 对单个字段应用所有适用规则，返回威胁发现列表
//
// 同一条规则的多处命中合并为一条发现，命中次数记录在描述中；
// 不同规则的命中互不去重。
func (s *ContentThreatScanner) Scan(value string, kind domain.FieldKind, opts domain.ValidationOptions) []domain.ThreatFinding {
	if value == "" {
		return nil
	}

	var findings []domain.ThreatFinding
	for _, rule := range s.rules {
		if !rule.AppliesTo(kind) {
			continue
		}
		if rule.Category == domain.CategoryPhishing && !opts.CheckPhishing {
			continue
		}

		count := rule.Count(value)
		if count == 0 {
			continue
		}

		findings = append(findings, domain.ThreatFinding{
			Category:    rule.Category,
			Severity:    contextSeverity(rule, kind, opts),
			Description: fmt.Sprintf("%s (%d occurrence(s))", rule.Description, count),
			PatternID:   rule.ID,
			Field:       string(kind),
		})
	}
	return findings
}

// contextSeverity 按字段上下文调整规则的基准严重级别
//
//   - XSS：目标字段允许渲染 HTML 时降为 High，否则保持 Critical。
//     钓鱼与恶意软件类的级别与渲染策略无关，保持固定。
//   - 恶意扩展名：命中附件名时提级为 Critical。
func contextSeverity(rule PatternRule, kind domain.FieldKind, opts domain.ValidationOptions) domain.Severity {
	switch rule.Category {
	case domain.CategoryXss:
		if kind == domain.FieldBody && opts.AllowHTML {
			return domain.SeverityHigh
		}
		return domain.SeverityCritical
	case domain.CategoryMalware:
		if rule.ID == "mal-dangerous-extension" && kind == domain.FieldAttachment {
			return domain.SeverityCritical
		}
	}
	return rule.Severity
}

// countHomoglyphMixes 统计混入拉丁文本的西里尔/希腊字母数量
//
// 纯西里尔或纯希腊文本是正常内容，只有与拉丁字母混排时才构成
// 同形异义字攻击特征。比较前先做 NFKC 规范化，避免组合字符绕过。
func countHomoglyphMixes(value string) int {
	normalized := norm.NFKC.String(value)

	hasLatin := false
	suspect := 0
	for _, r := range normalized {
		switch {
		case r < 128 && unicode.IsLetter(r):
			hasLatin = true
		case unicode.Is(unicode.Cyrillic, r), unicode.Is(unicode.Greek, r):
			suspect++
		}
	}
	if !hasLatin {
		return 0
	}
	return suspect
}

// scanTimestamp 返回发现创建时间，便于测试固定时钟
var scanTimestamp = time.Now
