package security

import "strings"

// disposableDomains 一次性/匿名邮箱域名静态封禁名单
var disposableDomains = map[string]bool{
	"mailinator.com":     true,
	"guerrillamail.com":  true,
	"guerrillamail.net":  true,
	"10minutemail.com":   true,
	"10minutemail.net":   true,
	"yopmail.com":        true,
	"temp-mail.org":      true,
	"tempmail.com":       true,
	"throwawaymail.com":  true,
	"sharklasers.com":    true,
	"getnada.com":        true,
	"trashmail.com":      true,
	"maildrop.cc":        true,
	"dispostable.com":    true,
	"fakeinbox.com":      true,
	"mailnesia.com":      true,
	"mytemp.email":       true,
	"mohmal.com":         true,
	"anonbox.net":        true,
	"spamgourmet.com":    true,
	"mintemail.com":      true,
	"tempinbox.com":      true,
	"emailondeck.com":    true,
	"burnermail.io":      true,
	"discard.email":      true,
	"mailcatch.com":      true,
}

// BlacklistChecker 收件人域名封禁检查器
//
// 对静态名单做 O(1) 集合查询；域名缺失或格式异常按已封禁处理。
type BlacklistChecker struct {
	domains map[string]bool
}

// NewBlacklistChecker 创建使用内置名单的检查器
func NewBlacklistChecker() *BlacklistChecker {
	return &BlacklistChecker{domains: disposableDomains}
}

// NewBlacklistCheckerWithDomains 创建追加了额外封禁域名的检查器
func NewBlacklistCheckerWithDomains(extra []string) *BlacklistChecker {
	domains := make(map[string]bool, len(disposableDomains)+len(extra))
	for d := range disposableDomains {
		domains[d] = true
	}
	for _, d := range extra {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains[d] = true
		}
	}
	return &BlacklistChecker{domains: domains}
}

// IsEmailBlacklisted 判断邮箱地址的域名是否在封禁名单内
func (b *BlacklistChecker) IsEmailBlacklisted(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		// 无法提取域名的地址一律视为封禁
		return true
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if domain == "" || !strings.Contains(domain, ".") {
		return true
	}
	return b.domains[domain]
}
