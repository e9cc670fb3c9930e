package security

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"mailguard/backend/internal/domain"
)

// Sanitizer 字段净化器
//
// 所有净化操作都是纯函数，且在固定策略下幂等：对已净化的值再次净化
// 是空操作。净化永不失败，总是返回尽力清理后的值。
type Sanitizer struct{}

// NewSanitizer 创建净化器
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

var (
	crlfRuns     = regexp.MustCompile(`[\r\n]+`)
	htmlTags     = regexp.MustCompile(`<[^>]*>`)
	addressChars = regexp.MustCompile(`[^a-z0-9@.-]`)
	// 文件系统非法字符与控制字符
	attachmentChars = regexp.MustCompile(`[<>:"/\\|?*[:cntrl:]]`)
	// 白名单标签的开闭形式，如 <p>、</li>、<br/>
	whitelistTag = regexp.MustCompile(`(?i)^<\s*(/?)\s*([a-z][a-z0-9]*)[^>]*>$`)
)

// bodyTagWhitelist 正文允许保留的 HTML 标签
var bodyTagWhitelist = map[string]bool{
	"p": true, "br": true, "strong": true, "b": true, "em": true,
	"i": true, "u": true, "a": true, "ul": true, "ol": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"div": true, "span": true,
}

// Sanitize 按字段类型与策略净化值，返回净化结果与净化过程产生的发现
// （目前只有截断产生的 SizeLimit 发现）
func (s *Sanitizer) Sanitize(value string, kind domain.FieldKind, opts domain.ValidationOptions) (string, []domain.ThreatFinding) {
	switch kind {
	case domain.FieldAddress:
		return s.sanitizeAddress(value), nil
	case domain.FieldSubject:
		return s.sanitizeSubject(value, opts)
	case domain.FieldBody:
		return s.sanitizeBody(value, opts)
	case domain.FieldAttachment:
		return s.sanitizeAttachmentName(value, opts)
	default:
		return value, nil
	}
}

// sanitizeAddress 小写、去空白，并剥离 [a-z0-9@.-] 之外的所有字符
func (s *Sanitizer) sanitizeAddress(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	return addressChars.ReplaceAllString(lowered, "")
}

// sanitizeSubject 将 CR/LF 折叠为单个空格，按策略处理尖括号并截断
func (s *Sanitizer) sanitizeSubject(value string, opts domain.ValidationOptions) (string, []domain.ThreatFinding) {
	out := crlfRuns.ReplaceAllString(value, " ")

	if opts.StrictMode {
		out = strings.ReplaceAll(out, "<", "")
		out = strings.ReplaceAll(out, ">", "")
	} else {
		out = strings.ReplaceAll(out, "<", "&lt;")
		out = strings.ReplaceAll(out, ">", "&gt;")
	}

	return truncate(out, opts.MaxLengthFor(domain.FieldSubject), domain.FieldSubject)
}

// sanitizeBody 规范化换行并按策略过滤 HTML
//
// 不允许 HTML 或严格模式下：先还原实体再剥离全部标签并做 HTML 转义。
// 先还原实体保证了该路径的幂等性——对已转义的正文再净化是空操作。
// 允许 HTML 时：仅保留白名单标签，保留的开标签重新输出为不带属性的
// 裸标签，其余标签原样丢弃。
func (s *Sanitizer) sanitizeBody(value string, opts domain.ValidationOptions) (string, []domain.ThreatFinding) {
	out := strings.ReplaceAll(value, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")

	if !opts.AllowHTML || opts.StrictMode {
		out = html.UnescapeString(out)
		out = htmlTags.ReplaceAllString(out, "")
		out = html.EscapeString(out)
	} else {
		out = htmlTags.ReplaceAllStringFunc(out, filterBodyTag)
	}

	return truncate(out, opts.MaxLengthFor(domain.FieldBody), domain.FieldBody)
}

// filterBodyTag 白名单过滤单个标签：允许的重新输出为裸标签，其余丢弃
func filterBodyTag(tag string) string {
	m := whitelistTag.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	name := strings.ToLower(m[2])
	if !bodyTagWhitelist[name] {
		return ""
	}
	if m[1] == "/" {
		return "</" + name + ">"
	}
	return "<" + name + ">"
}

// sanitizeAttachmentName 替换文件系统非法字符、去除首尾点并截断
func (s *Sanitizer) sanitizeAttachmentName(value string, opts domain.ValidationOptions) (string, []domain.ThreatFinding) {
	out := attachmentChars.ReplaceAllString(value, "_")
	out = strings.Trim(out, ".")
	return truncate(out, opts.MaxLengthFor(domain.FieldAttachment), domain.FieldAttachment)
}

// truncate 截断超长值并产生一条 SizeLimit 发现
//
// 长度按 Unicode 字符计，截断只落在字符边界上，多字节输入不会被切出
// 非法 UTF-8。
func truncate(value string, max int, kind domain.FieldKind) (string, []domain.ThreatFinding) {
	if max <= 0 {
		return value, nil
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value, nil
	}
	finding := domain.ThreatFinding{
		Category:    domain.CategorySizeLimit,
		Severity:    domain.SeverityLow,
		Description: fmt.Sprintf("value truncated from %d to %d characters", len(runes), max),
		PatternID:   "size-truncate",
		Field:       string(kind),
	}
	return string(runes[:max]), []domain.ThreatFinding{finding}
}
