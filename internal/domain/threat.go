package domain

import (
	"encoding/json"
	"time"
)

// Severity 威胁严重级别（有序，Critical 最高）
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String 返回严重级别的文本表示
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON 将严重级别序列化为文本
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON 从文本反序列化严重级别
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		*s = SeverityLow
	}
	return nil
}

// MaxSeverity 返回两个严重级别中较高的一个
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// ThreatCategory 威胁类别
type ThreatCategory string

const (
	CategorySmtpInjection ThreatCategory = "smtp_injection" // SMTP 头注入（CR/LF 及其编码形式）
	CategoryXss           ThreatCategory = "xss"            // 跨站脚本内容
	CategoryPhishing      ThreatCategory = "phishing"       // 钓鱼特征（同形异义字、品牌仿冒等）
	CategoryMalware       ThreatCategory = "malware"        // 恶意软件载体（危险扩展名、短链等）
	CategoryEncoding      ThreatCategory = "encoding"       // 可疑编码形式
	CategorySizeLimit     ThreatCategory = "size_limit"     // 超长被截断
)

// FieldKind 被校验的字段类型
type FieldKind string

const (
	FieldAddress    FieldKind = "address"
	FieldSubject    FieldKind = "subject"
	FieldBody       FieldKind = "body"
	FieldAttachment FieldKind = "attachment_name"
)

// ThreatFinding 单条威胁发现，每次扫描命中创建一条，创建后不可变
type ThreatFinding struct {
	Category    ThreatCategory `json:"category"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	PatternID   string         `json:"patternId,omitempty"` // 命中的规则标识
	Field       string         `json:"field"`
}

// MaxFindingSeverity 返回发现列表中的最高严重级别，空列表为 Low
func MaxFindingSeverity(findings []ThreatFinding) Severity {
	level := SeverityLow
	for _, f := range findings {
		level = MaxSeverity(level, f.Severity)
	}
	return level
}

// HasCritical 判断发现列表中是否存在 Critical 级别的发现
func HasCritical(findings []ThreatFinding) bool {
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ValidationVerdict 单字段或整封邮件的校验结论
//
// 不变式：
//   - RiskLevel 恒等于 Findings 中的最高严重级别（空列表为 Low）
//   - 存在 Critical 发现时 IsValid 恒为 false
//   - SanitizedValue 始终是该字段类型下结构良好的值，即使 IsValid 为 false
type ValidationVerdict struct {
	IsValid        bool            `json:"isValid"`
	SanitizedValue string          `json:"sanitizedValue"`
	Findings       []ThreatFinding `json:"findings"`
	RiskLevel      Severity        `json:"riskLevel"`
	CheckedAt      time.Time       `json:"checkedAt"`
}

// SanitizedEnvelope 整封邮件各字段净化后的结构化记录
//
// 序列化后作为整封校验结论的 SanitizedValue，调用方必须用它重建安全信封，
// 而不是继续使用原始输入。
type SanitizedEnvelope struct {
	To             string `json:"to"`
	From           string `json:"from,omitempty"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// Encode 将净化信封序列化为 JSON 字符串
func (e SanitizedEnvelope) Encode() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodeSanitizedEnvelope 从 JSON 字符串还原净化信封
func DecodeSanitizedEnvelope(value string) (SanitizedEnvelope, error) {
	var env SanitizedEnvelope
	err := json.Unmarshal([]byte(value), &env)
	return env, err
}
