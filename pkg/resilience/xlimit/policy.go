package xlimit

import (
	"fmt"
	"time"
)

// Policy 限流策略
type Policy struct {
	// Name 策略名，同时作为限流键的命名空间
	Name        string        `json:"name" yaml:"name" koanf:"name"`
	Window      time.Duration `json:"window" yaml:"window" koanf:"window"`
	MaxRequests int64         `json:"max_requests" yaml:"max_requests" koanf:"max_requests"`
}

// 预置策略
var (
	General   = Policy{Name: "general", Window: time.Minute, MaxRequests: 100}
	Expensive = Policy{Name: "expensive", Window: time.Minute, MaxRequests: 20}
	Auth      = Policy{Name: "auth", Window: 15 * time.Minute, MaxRequests: 5}
	Admin     = Policy{Name: "admin", Window: time.Minute, MaxRequests: 1000}
)

// Presets 返回预置策略，按名称索引
func Presets() map[string]Policy {
	return map[string]Policy{
		General.Name:   General,
		Expensive.Name: Expensive,
		Auth.Name:      Auth,
		Admin.Name:     Admin,
	}
}

// Validate 校验策略
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPolicy)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: %s window must be >= 1ms", ErrInvalidPolicy, p.Name)
	}
	if p.MaxRequests < 1 {
		return fmt.Errorf("%w: %s max_requests must be >= 1", ErrInvalidPolicy, p.Name)
	}
	return nil
}
