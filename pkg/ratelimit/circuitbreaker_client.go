package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"ctfex.com/pkg/metrics"
	"ctfex.com/pkg/xerr"
	"github.com/sony/gobreaker/v2"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数
	MaxRequests uint32
	// Closed 状态计数窗口
	Interval time.Duration
	// >0 启用 rolling window, 否则 fixed window
	BucketPeriod time.Duration
	// Open 持续时间, 到期进入 Half-Open
	Timeout time.Duration

	// 触发熔断条件 (两种之一即可)
	TripConsecutiveFailures uint32
	TripFailureRate         float64 // 0~1
	TripMinRequests         uint32
}

// Manager hands out one breaker per downstream name (e.g. "nats.publish").
type Manager struct {
	service string

	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(service string, defaultRule Rule, perName map[string]Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 3 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 10 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}
	return &Manager{
		service:     service,
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 8),
		defaultRule: defaultRule,
		rules:       perName,
	}
}

func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[struct{}] {
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule, ok := m.rules[name]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         name,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		IsSuccessful: isSuccessfulForBreaker,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(m.service, name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(m.service, name, to.String()).Set(1)
		},
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[name] = cb
	return cb
}

// Do runs fn through the named breaker. Rejections come back as
// gobreaker.ErrOpenState / ErrTooManyRequests.
func (m *Manager) Do(name string, fn func() error) error {
	_, err := m.Get(name).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CBRejectTotal.WithLabelValues(m.service, name, err.Error()).Inc()
	}
	return err
}

// 业务可预期的错误不代表下游不健康, 不计入熔断
func isSuccessfulForBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	if _, ok := xerr.As(err); !ok {
		return false
	}
	switch xerr.KindOf(err) {
	case xerr.KindInternal, xerr.KindUnavailable:
		return false
	default:
		return true
	}
}
