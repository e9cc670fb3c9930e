package security

import (
	"fmt"
	"strings"
	"unicode"

	"mailguard/backend/internal/domain"
)

// spamKeywordFamily 一组同权重的垃圾邮件关键词
type spamKeywordFamily struct {
	name     string
	weight   float64
	keywords []string
}

// spamFamilies 固定的关键词族，权重乘以命中次数累加
var spamFamilies = []spamKeywordFamily{
	{
		name:   "urgency",
		weight: 15,
		keywords: []string{
			"act now", "urgent", "hurry", "immediate action", "don't wait",
			"last chance", "final notice",
		},
	},
	{
		name:   "promotional",
		weight: 10,
		keywords: []string{
			"free", "discount", "special offer", "save big", "best price",
			"lowest price", "bonus",
		},
	},
	{
		name:   "call-to-action",
		weight: 8,
		keywords: []string{
			"click here", "call now", "order now", "sign up now", "buy now",
			"subscribe now",
		},
	},
	{
		name:   "false-congratulations",
		weight: 15,
		keywords: []string{
			"congratulations", "you have won", "you've won", "winner",
			"you have been selected", "claim your prize",
		},
	},
	{
		name:   "financial",
		weight: 10,
		keywords: []string{
			"$$$", "cash bonus", "money back", "extra income", "earn money",
			"double your", "investment opportunity",
		},
	},
	{
		name:   "time-pressure",
		weight: 10,
		keywords: []string{
			"today only", "expires soon", "within 24 hours", "limited time",
			"before it's too late", "offer ends",
		},
	},
	{
		name:   "guarantee",
		weight: 10,
		keywords: []string{
			"guaranteed", "100% guaranteed", "no risk", "risk-free",
			"money-back guarantee", "satisfaction guaranteed",
		},
	},
}

const (
	uppercaseRatioLimit   = 0.30
	uppercasePenalty      = 15.0
	exclamationFreeCount  = 3
	exclamationMarkWeight = 2.0
)

// SpamScorer 垃圾邮件启发式评分器，纯函数、确定性、无共享状态
type SpamScorer struct {
	threshold float64
}

// NewSpamScorer 创建使用默认阈值的评分器
func NewSpamScorer() *SpamScorer {
	return &SpamScorer{threshold: domain.SpamThreshold}
}

// NewSpamScorerWithThreshold 创建自定义阈值的评分器
func NewSpamScorerWithThreshold(threshold float64) *SpamScorer {
	if threshold <= 0 {
		threshold = domain.SpamThreshold
	}
	return &SpamScorer{threshold: threshold}
}

// DetectSpamContent 对主题与正文做加权关键词评分
//
// 每个关键词族的权重乘以族内关键词的总命中次数后累加；
// 大写字母占比超过 30% 加固定罚分；感叹号超过 3 个后每个加罚分。
// 得分超过阈值即判定为垃圾邮件。
func (s *SpamScorer) DetectSpamContent(subject, body string) domain.SpamVerdict {
	text := subject + " " + body
	lower := strings.ToLower(text)

	score := 0.0
	var reasons []string

	for _, family := range spamFamilies {
		hits := 0
		for _, kw := range family.keywords {
			hits += strings.Count(lower, kw)
		}
		if hits == 0 {
			continue
		}
		score += family.weight * float64(hits)
		reasons = append(reasons, fmt.Sprintf("%s language (%d hit(s))", family.name, hits))
	}

	if ratio := uppercaseRatio(text); ratio > uppercaseRatioLimit {
		score += uppercasePenalty
		reasons = append(reasons, fmt.Sprintf("excessive uppercase (%.0f%%)", ratio*100))
	}

	if marks := strings.Count(text, "!"); marks > exclamationFreeCount {
		score += float64(marks-exclamationFreeCount) * exclamationMarkWeight
		reasons = append(reasons, fmt.Sprintf("excessive exclamation marks (%d)", marks))
	}

	return domain.SpamVerdict{
		IsSpam:  score > s.threshold,
		Score:   score,
		Reasons: reasons,
	}
}

// uppercaseRatio 计算文本中大写字母占全部字母的比例
func uppercaseRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
