package security

import (
	"regexp"

	"mailguard/backend/internal/domain"
)

// CatalogVersion 规则目录版本号，规则集变更时递增
const CatalogVersion = "2025.08"

// PatternRule 单条检测规则
//
// 规则目录以单一数据表的形式组织，每条规则带类别、基准严重级别与匹配器，
// 便于对每条规则做独立的数据驱动测试。
type PatternRule struct {
	ID          string
	Category    domain.ThreatCategory
	Severity    domain.Severity // 基准级别，扫描器可按字段上下文提级（见 scanner.go）
	Matcher     *regexp.Regexp
	MatchFunc   func(value string) int // 正则无法表达的规则（如同形异义字），返回命中次数
	Description string
	Fields      []domain.FieldKind // 为空表示适用于所有字段
}

// AppliesTo 判断规则是否适用于指定字段
func (r PatternRule) AppliesTo(kind domain.FieldKind) bool {
	if len(r.Fields) == 0 {
		return true
	}
	for _, f := range r.Fields {
		if f == kind {
			return true
		}
	}
	return false
}

// Count 返回规则在给定文本中的命中次数
func (r PatternRule) Count(value string) int {
	if r.MatchFunc != nil {
		return r.MatchFunc(value)
	}
	return len(r.Matcher.FindAllStringIndex(value, -1))
}

// smtpHeaderTokens SMTP 头注入使用的头名称令牌
var smtpHeaderTokens = regexp.MustCompile(`(?i)\b(bcc|cc|content-type|subject|from|to|reply-to|message-id|received|return-path|x-[a-z0-9-]+)\s*:`)

// PatternCatalog 返回完整的检测规则目录
//
// 四个规则族相互独立且不互斥：同一个值可以同时命中多个族的多条规则。
func PatternCatalog() []PatternRule {
	return []PatternRule{
		// ========== SMTP 注入 ==========
		{
			ID:          "smtp-raw-cr",
			Category:    domain.CategorySmtpInjection,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`\r`),
			Description: "raw carriage return",
		},
		{
			ID:          "smtp-raw-lf",
			Category:    domain.CategorySmtpInjection,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`\n`),
			Description: "raw line feed",
		},
		{
			ID:          "smtp-encoded-crlf",
			Category:    domain.CategorySmtpInjection,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`(?i)(%0[da]|\\x0[da]|&#x?0*(13|10|d|a);)`),
			Description: "encoded CR/LF sequence",
		},
		{
			ID:          "smtp-header-token",
			Category:    domain.CategorySmtpInjection,
			Severity:    domain.SeverityCritical,
			Matcher:     smtpHeaderTokens,
			Description: "mail header token",
		},

		// ========== XSS ==========
		// XSS 规则的基准级别为 Critical，当目标字段允许 HTML 时由扫描器
		// 降为 High（见 scanner.go 的上下文调整）。
		{
			ID:          "xss-dangerous-tag",
			Category:    domain.CategoryXss,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed|form|input|textarea|select|button)\b`),
			Description: "dangerous HTML tag",
		},
		{
			ID:          "xss-event-handler",
			Category:    domain.CategoryXss,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
			Description: "inline event handler attribute",
		},
		{
			ID:          "xss-script-uri",
			Category:    domain.CategoryXss,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`(?i)\b(javascript|vbscript|data|blob)\s*:`),
			Description: "scriptable URI scheme",
		},
		{
			ID:          "xss-meta-refresh",
			Category:    domain.CategoryXss,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`(?i)<\s*meta[^>]+http-equiv\s*=\s*["']?\s*refresh`),
			Description: "meta refresh redirect",
		},
		{
			ID:          "xss-css-vector",
			Category:    domain.CategoryXss,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`(?i)(@import|expression\s*\(|url\s*\()`),
			Description: "CSS injection vector",
		},
		{
			ID:          "xss-html-entity",
			Category:    domain.CategoryXss,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`(?i)&#x?[0-9a-f]+;`),
			Description: "numeric HTML entity",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},
		{
			ID:          "xss-percent-encoding",
			Category:    domain.CategoryXss,
			Severity:    domain.SeverityCritical,
			Matcher:     regexp.MustCompile(`%[0-9a-fA-F]{2}`),
			Description: "percent-encoded sequence",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},

		// ========== 可疑编码 ==========
		{
			ID:          "enc-null-byte",
			Category:    domain.CategoryEncoding,
			Severity:    domain.SeverityMedium,
			Matcher:     regexp.MustCompile("\x00"),
			Description: "embedded null byte",
		},
		{
			ID:          "enc-replacement-char",
			Category:    domain.CategoryEncoding,
			Severity:    domain.SeverityMedium,
			Matcher:     regexp.MustCompile("�"),
			Description: "unicode replacement character",
		},

		// ========== 钓鱼 ==========
		{
			ID:          "phish-homoglyph",
			Category:    domain.CategoryPhishing,
			Severity:    domain.SeverityHigh,
			MatchFunc:   countHomoglyphMixes,
			Description: "mixed-script homoglyph characters",
		},
		{
			ID:          "phish-zero-width",
			Category:    domain.CategoryPhishing,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`[\x{200B}-\x{200F}\x{202A}-\x{202E}\x{2060}\x{FEFF}]`),
			Description: "zero-width or format character",
		},
		{
			ID:          "phish-brand-lookalike",
			Category:    domain.CategoryPhishing,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)(paypa1|pay-pal|g00gle|go0gle|micros0ft|rnicrosoft|amaz0n|arnazon|faceb00k|app1e|apple-id-|netf1ix|secure-?(login|account|verify)\.)`),
			Description: "brand lookalike domain pattern",
		},
		{
			ID:          "phish-free-tld",
			Category:    domain.CategoryPhishing,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)\.(tk|ml|ga|cf|gq|top|click|loan|win|bid)(\b|$)`),
			Description: "free or disposable TLD",
		},
		{
			ID:          "phish-urgent-action",
			Category:    domain.CategoryPhishing,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)(verify your account|account (will be |has been )?(suspended|locked|closed)|confirm your (identity|password)|unusual (activity|sign-?in)|click here immediately)`),
			Description: "urgent action language",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},
		{
			ID:          "phish-fake-win",
			Category:    domain.CategoryPhishing,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)(you (have |'ve )?(been selected|won)|congratulations.{0,30}(winner|prize|lottery)|claim your (prize|reward|winnings))`),
			Description: "fake winnings language",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},
		{
			ID:          "phish-advance-fee",
			Category:    domain.CategoryPhishing,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)(inheritance|beneficiary|next of kin|million (dollars|usd|euros)|processing fee|advance fee|transfer (the )?funds)`),
			Description: "advance-fee fraud language",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},

		// ========== 恶意软件载体 ==========
		// 扩展名规则命中附件名时由扫描器提级为 Critical。
		{
			ID:          "mal-dangerous-extension",
			Category:    domain.CategoryMalware,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)\.(exe|bat|cmd|scr|pif|vbs|vbe|js|jse|jar|msi|dll|ps1|hta|cpl|reg|wsf|lnk|iso|img)(\b|$)`),
			Description: "dangerous file extension",
			Fields:      []domain.FieldKind{domain.FieldBody, domain.FieldAttachment},
		},
		{
			ID:          "mal-url-shortener",
			Category:    domain.CategoryMalware,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)\b(bit\.ly|tinyurl\.com|goo\.gl|t\.co|ow\.ly|is\.gd|buff\.ly|rebrand\.ly|cutt\.ly|shorturl\.at)\b`),
			Description: "URL shortener domain",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},
		{
			ID:          "mal-ip-literal",
			Category:    domain.CategoryMalware,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
			Description: "raw IP address literal",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},
		{
			ID:          "mal-raw-protocol",
			Category:    domain.CategoryMalware,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)\b(ftp|file|smb|ldap|telnet)://`),
			Description: "non-http protocol scheme",
			Fields:      []domain.FieldKind{domain.FieldSubject, domain.FieldBody},
		},
		{
			ID:          "mal-redirect-param",
			Category:    domain.CategoryMalware,
			Severity:    domain.SeverityHigh,
			Matcher:     regexp.MustCompile(`(?i)[?&](redirect|redir|url|goto|next|return_to|continue)=https?`),
			Description: "open redirect parameter",
			Fields:      []domain.FieldKind{domain.FieldBody},
		},
	}
}
