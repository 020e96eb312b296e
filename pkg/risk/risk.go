// Package risk 交易风控评分
package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paygate/pkg/logger"
)

// Level 风险等级
type Level string

const (
	LevelNone     Level = "none"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

var severity = map[Level]int{
	LevelNone:     0,
	LevelLow:      1,
	LevelMedium:   2,
	LevelHigh:     3,
	LevelCritical: 4,
}

// Action 处置动作
type Action string

const (
	ActionAllow        Action = "allow"
	ActionManualReview Action = "manual_review"
	ActionBlock        Action = "block"
)

// 风险类型
const (
	TypeAmountExceed    = "AMOUNT_EXCEED"
	TypeFrequencyExceed = "FREQUENCY_EXCEED"
	TypeMultipleFailure = "MULTIPLE_FAILURES"
	TypeAbnormalIP      = "ABNORMAL_IP"
	TypeSmallHighFreq   = "SMALL_HIGH_FREQ"
)

// 参与异常 IP 判定的最近成功交易数
const recentIPWindow = 5

// 小额高频的每小时笔数下限
const smallHighFreqCount = 3

// Signal 命中的风险信号
type Signal struct {
	Type        string `json:"type"`
	Level       Level  `json:"level"`
	Description string `json:"description"`
}

// Verdict 评分结果，不落库
type Verdict struct {
	Level       Level    `json:"level"`
	Action      Action   `json:"action"`
	Signals     []Signal `json:"signals"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
}

// Flagged 命中任一信号
func (v *Verdict) Flagged() bool {
	return len(v.Signals) > 0
}

// BlockedError 风控拦截
type BlockedError struct {
	Verdict *Verdict
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("transaction blocked by risk control (level %s): %s", e.Verdict.Level, e.Verdict.Description)
}

// Candidate 待评估的交易
type Candidate struct {
	UserID uint64
	Amount decimal.Decimal
	IP     string
}

// Stats 评分所需的历史统计
type Stats interface {
	CountSince(ctx context.Context, userID uint64, since time.Time) (int64, error)
	CountFailedSince(ctx context.Context, userID uint64, since time.Time) (int64, error)
	RecentSuccessIPs(ctx context.Context, userID uint64, limit int) ([]string, error)
}

// Config 阈值配置
type Config struct {
	MaxAmount             decimal.Decimal
	MaxHourlyTransactions int64
	MaxFailedAttempts     int64
	SmallAmount           decimal.Decimal
}

// Scorer 风控评分器
type Scorer struct {
	cfg   Config
	stats Stats
	now   func() time.Time
}

// NewScorer 创建评分器
func NewScorer(cfg Config, stats Stats) *Scorer {
	return &Scorer{
		cfg:   cfg,
		stats: stats,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate 评估一笔交易。统计查询失败时跳过对应信号并记录日志
func (s *Scorer) Evaluate(ctx context.Context, c Candidate) *Verdict {
	var signals []Signal
	now := s.now()

	if c.Amount.GreaterThan(s.cfg.MaxAmount) {
		signals = append(signals, Signal{
			Type:        TypeAmountExceed,
			Level:       LevelHigh,
			Description: fmt.Sprintf("交易金额 %s 超过上限 %s", c.Amount.StringFixed(2), s.cfg.MaxAmount.StringFixed(2)),
		})
	}

	hourly, err := s.stats.CountSince(ctx, c.UserID, now.Add(-time.Hour))
	if err != nil {
		logger.ErrorString("Risk", "HourlyCount", err.Error())
		hourly = 0
	} else if hourly >= s.cfg.MaxHourlyTransactions {
		signals = append(signals, Signal{
			Type:        TypeFrequencyExceed,
			Level:       LevelHigh,
			Description: fmt.Sprintf("1小时内交易 %d 笔，超过上限 %d", hourly, s.cfg.MaxHourlyTransactions),
		})
	}

	failed, err := s.stats.CountFailedSince(ctx, c.UserID, now.Add(-24*time.Hour))
	if err != nil {
		logger.ErrorString("Risk", "FailedCount", err.Error())
	} else if failed >= s.cfg.MaxFailedAttempts {
		signals = append(signals, Signal{
			Type:        TypeMultipleFailure,
			Level:       LevelMedium,
			Description: fmt.Sprintf("24小时内失败 %d 次", failed),
		})
	}

	// 没有成功交易记录的用户不做 IP 判定
	ips, err := s.stats.RecentSuccessIPs(ctx, c.UserID, recentIPWindow)
	if err != nil {
		logger.ErrorString("Risk", "RecentIPs", err.Error())
	} else if len(ips) > 0 && !contains(ips, c.IP) {
		signals = append(signals, Signal{
			Type:        TypeAbnormalIP,
			Level:       LevelMedium,
			Description: fmt.Sprintf("IP %s 不在最近常用 IP 中", c.IP),
		})
	}

	if hourly >= smallHighFreqCount && c.Amount.LessThanOrEqual(s.cfg.SmallAmount) {
		signals = append(signals, Signal{
			Type:        TypeSmallHighFreq,
			Level:       LevelLow,
			Description: fmt.Sprintf("小额高频：1小时内 %d 笔", hourly),
		})
	}

	return verdict(signals)
}

// verdict 取最高等级并决定处置动作
func verdict(signals []Signal) *Verdict {
	v := &Verdict{Level: LevelNone, Action: ActionAllow, Signals: signals}
	if len(signals) == 0 {
		return v
	}

	descriptions := make([]string, 0, len(signals))
	for _, sig := range signals {
		if severity[sig.Level] > severity[v.Level] {
			v.Level = sig.Level
		}
		descriptions = append(descriptions, sig.Description)
	}
	v.Description = strings.Join(descriptions, "; ")
	v.Type = signals[0].Type

	switch v.Level {
	case LevelCritical, LevelHigh:
		v.Action = ActionBlock
	case LevelMedium:
		v.Action = ActionManualReview
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
