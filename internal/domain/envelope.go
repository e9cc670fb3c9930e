package domain

// EmailEnvelope 待发送邮件的信封，由调用方持有，校验过程不会原地修改
type EmailEnvelope struct {
	To             string `json:"to" binding:"required"`
	From           string `json:"from,omitempty"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// 字段长度默认上限
const (
	DefaultMaxSubjectLength    = 200
	DefaultMaxBodyLength       = 50000
	DefaultMaxAttachmentLength = 255
)

// ValidationOptions 校验与净化策略
type ValidationOptions struct {
	AllowHTML        bool `json:"allowHtml"`        // 正文是否允许白名单 HTML 标签
	MaxLength        int  `json:"maxLength"`        // 字段长度上限，0 表示使用该字段类型的默认值
	StrictMode       bool `json:"strictMode"`       // 严格模式：剥离而非转义可疑字符
	CheckPhishing    bool `json:"checkPhishing"`    // 是否启用钓鱼特征检测
	AllowAttachments bool `json:"allowAttachments"` // 是否允许附件
}

// DefaultValidationOptions 返回默认校验策略
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		AllowHTML:        false,
		MaxLength:        0,
		StrictMode:       false,
		CheckPhishing:    true,
		AllowAttachments: true,
	}
}

// MaxLengthFor 返回指定字段类型生效的长度上限
func (o ValidationOptions) MaxLengthFor(kind FieldKind) int {
	if o.MaxLength > 0 {
		return o.MaxLength
	}
	switch kind {
	case FieldSubject:
		return DefaultMaxSubjectLength
	case FieldBody:
		return DefaultMaxBodyLength
	case FieldAttachment:
		return DefaultMaxAttachmentLength
	default:
		return DefaultMaxSubjectLength
	}
}
