package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailguard/backend/internal/domain"
)

func findingByPattern(findings []domain.ThreatFinding, patternID string) *domain.ThreatFinding {
	for i := range findings {
		if findings[i].PatternID == patternID {
			return &findings[i]
		}
	}
	return nil
}

func TestContentThreatScanner_SmtpInjection(t *testing.T) {
	scanner := NewContentThreatScanner()
	opts := domain.DefaultValidationOptions()

	t.Run("主题中的裸CRLF与头令牌被判定为注入", func(t *testing.T) {
		findings := scanner.Scan("Hello\r\nBcc: evil@attacker.com", domain.FieldSubject, opts)

		assert.NotNil(t, findingByPattern(findings, "smtp-raw-cr"))
		assert.NotNil(t, findingByPattern(findings, "smtp-raw-lf"))
		assert.NotNil(t, findingByPattern(findings, "smtp-header-token"))
		assert.Equal(t, domain.SeverityCritical, domain.MaxFindingSeverity(findings))
	})

	t.Run("编码形式的CRLF同样被检出", func(t *testing.T) {
		for _, payload := range []string{"a%0Ab", "a%0d%0ab", `a\x0Ab`, "a&#13;b", "a&#x0A;b"} {
			findings := scanner.Scan(payload, domain.FieldSubject, opts)
			assert.NotNil(t, findingByPattern(findings, "smtp-encoded-crlf"), "payload: %s", payload)
		}
	})

	t.Run("正文中的裸换行同样被标记", func(t *testing.T) {
		findings := scanner.Scan("line one\nline two", domain.FieldBody, opts)
		assert.NotNil(t, findingByPattern(findings, "smtp-raw-lf"))
	})

	t.Run("正常地址无任何发现", func(t *testing.T) {
		findings := scanner.Scan("John.Doe@EXAMPLE.com", domain.FieldAddress, opts)
		assert.Empty(t, findings)
	})
}

func TestContentThreatScanner_XssContextSeverity(t *testing.T) {
	scanner := NewContentThreatScanner()

	t.Run("不允许HTML时script标签为Critical", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()
		findings := scanner.Scan("<script>alert(1)</script>", domain.FieldBody, opts)

		f := findingByPattern(findings, "xss-dangerous-tag")
		assert.NotNil(t, f)
		assert.Equal(t, domain.SeverityCritical, f.Severity)
	})

	t.Run("允许HTML的正文中script标签降为High", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()
		opts.AllowHTML = true
		findings := scanner.Scan("<script>alert(1)</script>", domain.FieldBody, opts)

		f := findingByPattern(findings, "xss-dangerous-tag")
		assert.NotNil(t, f)
		assert.Equal(t, domain.SeverityHigh, f.Severity)
	})

	t.Run("主题中的script标签不受AllowHTML影响", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()
		opts.AllowHTML = true
		findings := scanner.Scan("<script>x</script>", domain.FieldSubject, opts)

		f := findingByPattern(findings, "xss-dangerous-tag")
		assert.NotNil(t, f)
		assert.Equal(t, domain.SeverityCritical, f.Severity)
	})

	t.Run("事件处理器与脚本URI被检出", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()

		findings := scanner.Scan(`<img onerror=alert(1)>`, domain.FieldBody, opts)
		assert.NotNil(t, findingByPattern(findings, "xss-event-handler"))

		findings = scanner.Scan("javascript:alert(1)", domain.FieldBody, opts)
		assert.NotNil(t, findingByPattern(findings, "xss-script-uri"))
	})
}

func TestContentThreatScanner_Phishing(t *testing.T) {
	scanner := NewContentThreatScanner()

	t.Run("混入拉丁文本的西里尔字母被判定为同形异义字", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()
		// 'а' 是西里尔字母 U+0430
		findings := scanner.Scan("pаypal.com login", domain.FieldBody, opts)

		f := findingByPattern(findings, "phish-homoglyph")
		assert.NotNil(t, f)
		assert.Equal(t, domain.SeverityHigh, f.Severity)
		assert.Equal(t, domain.CategoryPhishing, f.Category)
	})

	t.Run("纯西里尔文本不构成同形异义字", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()
		findings := scanner.Scan("привет мир", domain.FieldBody, opts)
		assert.Nil(t, findingByPattern(findings, "phish-homoglyph"))
	})

	t.Run("零宽与格式控制字符被检出", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()
		for _, value := range []string{
			"pay​pal.com",   // 零宽空格
			"secure\uFEFFbank",   // 字节序标记
			"‮exe.txt",      // 从右到左覆盖
			"account⁠login", // 词连接符
		} {
			findings := scanner.Scan(value, domain.FieldSubject, opts)
			f := findingByPattern(findings, "phish-zero-width")
			if assert.NotNil(t, f, value) {
				assert.Equal(t, domain.SeverityHigh, f.Severity)
			}
		}

		findings := scanner.Scan("plain subject", domain.FieldSubject, opts)
		assert.Nil(t, findingByPattern(findings, "phish-zero-width"))
	})

	t.Run("关闭钓鱼检测时跳过整个规则族", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()
		opts.CheckPhishing = false
		findings := scanner.Scan("verify your account at pаypal.com", domain.FieldBody, opts)

		for _, f := range findings {
			assert.NotEqual(t, domain.CategoryPhishing, f.Category)
		}
	})

	t.Run("紧急话术与中奖话术被检出", func(t *testing.T) {
		opts := domain.DefaultValidationOptions()

		findings := scanner.Scan("your account will be suspended", domain.FieldBody, opts)
		assert.NotNil(t, findingByPattern(findings, "phish-urgent-action"))

		findings = scanner.Scan("Congratulations! You are our lottery winner", domain.FieldSubject, opts)
		assert.NotNil(t, findingByPattern(findings, "phish-fake-win"))
	})
}

func TestContentThreatScanner_Malware(t *testing.T) {
	scanner := NewContentThreatScanner()
	opts := domain.DefaultValidationOptions()

	t.Run("附件名中的危险扩展名提级为Critical", func(t *testing.T) {
		findings := scanner.Scan("invoice.exe", domain.FieldAttachment, opts)

		f := findingByPattern(findings, "mal-dangerous-extension")
		assert.NotNil(t, f)
		assert.Equal(t, domain.SeverityCritical, f.Severity)
	})

	t.Run("正文中的危险扩展名保持High", func(t *testing.T) {
		findings := scanner.Scan("download setup.exe today", domain.FieldBody, opts)

		f := findingByPattern(findings, "mal-dangerous-extension")
		assert.NotNil(t, f)
		assert.Equal(t, domain.SeverityHigh, f.Severity)
	})

	t.Run("短链域名与IP直连被检出", func(t *testing.T) {
		findings := scanner.Scan("visit bit.ly/abc", domain.FieldBody, opts)
		assert.NotNil(t, findingByPattern(findings, "mal-url-shortener"))

		findings = scanner.Scan("http://192.168.1.100/payload", domain.FieldBody, opts)
		assert.NotNil(t, findingByPattern(findings, "mal-ip-literal"))
	})
}

func TestContentThreatScanner_Encoding(t *testing.T) {
	scanner := NewContentThreatScanner()
	opts := domain.DefaultValidationOptions()

	t.Run("空字节为Medium级别", func(t *testing.T) {
		findings := scanner.Scan("abc\x00def", domain.FieldBody, opts)

		f := findingByPattern(findings, "enc-null-byte")
		assert.NotNil(t, f)
		assert.Equal(t, domain.SeverityMedium, f.Severity)
		assert.Equal(t, domain.CategoryEncoding, f.Category)
	})

	t.Run("同一规则多处命中合并为一条发现", func(t *testing.T) {
		findings := scanner.Scan("a\x00b\x00c\x00d", domain.FieldBody, opts)

		count := 0
		for _, f := range findings {
			if f.PatternID == "enc-null-byte" {
				count++
				assert.Contains(t, f.Description, "3 occurrence(s)")
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("空值直接返回空发现", func(t *testing.T) {
		assert.Nil(t, scanner.Scan("", domain.FieldBody, opts))
	})
}
