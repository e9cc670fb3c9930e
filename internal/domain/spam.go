package domain

// SpamThreshold 垃圾邮件判定阈值，得分超过该值即判定为垃圾邮件
const SpamThreshold = 50.0

// SpamVerdict 垃圾邮件启发式评分结果
type SpamVerdict struct {
	IsSpam  bool     `json:"isSpam"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}
