package xconf

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/v2"
)

// Format 配置格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 已加载的配置源
type Config interface {
	// Client 返回当前的 koanf 实例，Reload 后旧实例仍可读但数据过期
	Client() *koanf.Koanf

	// Unmarshal 把 path 处的配置解码到 target，path 为空表示根
	Unmarshal(path string, target any) error

	// Reload 重新读取配置文件，失败时保留旧配置
	Reload() error

	// Path 配置文件路径，从字节创建时为空
	Path() string

	// Format 配置格式
	Format() Format
}

// Validator 可自校验的配置段
type Validator interface {
	Validate() error
}

// Load 把 path 处的配置解码到 target 并校验。
//
// target 通常先填好默认值：配置中缺失的字段保持不变。
// target 实现 Validator 时，校验失败返回包装了 ErrInvalid 的错误。
func Load(c Config, path string, target any) error {
	if c == nil {
		return ErrNilConfig
	}
	if err := c.Unmarshal(path, target); err != nil {
		return err
	}
	v, ok := target.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if path == "" {
			path = "<root>"
		}
		return fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return nil
}

// MustLoad 与 Load 相同，失败时 panic，仅用于启动阶段
func MustLoad(c Config, path string, target any) {
	if err := Load(c, path, target); err != nil {
		panic(err)
	}
}

// IsInvalid 判断错误是否来自配置校验
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
