package middlewares

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"paygate/pkg/app"
	"paygate/pkg/limiter"
	"paygate/pkg/logger"
	"paygate/pkg/response"
)

const (
	// DefaultBurst 默认突发请求数量
	DefaultBurst = 100
	// 限流器闲置多久后清理
	idleLimiterTTL = 24 * time.Hour
)

// localLimiters 进程内限流器，按 key 缓存
type localLimiters struct {
	entries    sync.Map // key -> *limiterEntry
	limit      string
	burst      int
	lastSweep  time.Time
	sweepMutex sync.Mutex
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// LimitIP 全局限流中间件，针对 IP 进行限流，使用进程内令牌桶
//
// 支持的限流格式:
// - 5 reqs/second:   "5-S"
// - 10 reqs/minute:  "10-M"
// - 1000 reqs/hour:  "1000-H"
// - 2000 reqs/day:   "2000-D"
func LimitIP(limit string) gin.HandlerFunc {
	// 测试环境使用较大限制
	if app.IsTesting() {
		limit = "1000000-H"
	}

	local := &localLimiters{limit: limit, burst: DefaultBurst, lastSweep: time.Now()}
	return func(c *gin.Context) {
		if !local.allow(c, limiter.GetKeyIP(c)) {
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}

// LimitPerRoute 针对单个路由的限流中间件，key 为路由+IP
// store 不为空时使用 Redis 计数，多实例共享额度；否则退化为进程内令牌桶
func LimitPerRoute(limit string, store *limiter.Store) gin.HandlerFunc {
	if app.IsTesting() {
		limit = "1000000-H"
	}

	local := &localLimiters{limit: limit, burst: DefaultBurst, lastSweep: time.Now()}
	return func(c *gin.Context) {
		key := limiter.GetKeyRouteWithIP(c)

		if store == nil {
			if !local.allow(c, key) {
				response.TooManyRequests(c)
				return
			}
			c.Next()
			return
		}

		result, err := store.CheckRate(c, key, limit)
		if err != nil {
			// Redis 不可用时放行
			logger.LogIf(err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", cast.ToString(result.Limit))
		c.Header("X-RateLimit-Remaining", cast.ToString(result.Remaining))
		c.Header("X-RateLimit-Reset", cast.ToString(result.Reset))

		if result.Reached {
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}

// allow 取令牌，限流配置无效时放行
func (l *localLimiters) allow(c *gin.Context, key string) bool {
	l.sweepIdle()

	entry, err := l.get(key)
	if err != nil {
		logger.ErrorString("限流器", "创建失败", err.Error())
		return true
	}
	entry.lastSeen.Store(time.Now().Unix())

	if !entry.lim.Allow() {
		return false
	}

	c.Header("X-RateLimit-Limit", cast.ToString(entry.lim.Limit()))
	c.Header("X-RateLimit-Remaining", cast.ToString(int(entry.lim.Tokens())))
	return true
}

func (l *localLimiters) get(key string) (*limiterEntry, error) {
	if v, ok := l.entries.Load(key); ok {
		return v.(*limiterEntry), nil
	}

	r, err := limiter.ParseLimit(l.limit)
	if err != nil {
		return nil, err
	}

	entry := &limiterEntry{lim: rate.NewLimiter(rate.Limit(r.Rate), l.burst)}
	actual, _ := l.entries.LoadOrStore(key, entry)
	return actual.(*limiterEntry), nil
}

// sweepIdle 每小时清理一次长期未使用的限流器
func (l *localLimiters) sweepIdle() {
	l.sweepMutex.Lock()
	if time.Since(l.lastSweep) < time.Hour {
		l.sweepMutex.Unlock()
		return
	}
	l.lastSweep = time.Now()
	l.sweepMutex.Unlock()

	cutoff := time.Now().Add(-idleLimiterTTL).Unix()
	l.entries.Range(func(key, value interface{}) bool {
		if value.(*limiterEntry).lastSeen.Load() < cutoff {
			l.entries.Delete(key)
		}
		return true
	})
}
