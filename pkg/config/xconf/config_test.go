package xconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xguard/pkg/observability/xlog"
)

type serverSection struct {
	Addr     string        `koanf:"addr"`
	Timeout  time.Duration `koanf:"timeout"`
	Workers  int           `koanf:"workers"`
	LogLevel xlog.Level    `koanf:"log_level"`
}

func (s *serverSection) Validate() error {
	if s.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	return nil
}

const sampleYAML = `
server:
  addr: ":9090"
  timeout: 250ms
  log_level: warn
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_KeepsDefaults(t *testing.T) {
	cfg, err := New(writeFile(t, "xguard.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, cfg.Format())

	s := serverSection{Addr: ":8080", Workers: 4}
	require.NoError(t, Load(cfg, "server", &s))
	assert.Equal(t, ":9090", s.Addr)
	assert.Equal(t, 250*time.Millisecond, s.Timeout)
	assert.Equal(t, 4, s.Workers)
	assert.Equal(t, xlog.LevelWarn, s.LogLevel)
}

func TestLoad_Validate(t *testing.T) {
	cfg, err := NewFromBytes([]byte(`{"server":{"workers":0}}`), FormatJSON)
	require.NoError(t, err)

	var s serverSection
	err = Load(cfg, "server", &s)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "server")

	assert.Panics(t, func() { MustLoad(cfg, "server", &s) })
	assert.ErrorIs(t, Load(nil, "", &s), ErrNilConfig)
}

func TestNew_Errors(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = New("config.toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = New(writeFile(t, "bad.json", "{"))
	assert.ErrorIs(t, err, ErrParseFailed)

	_, err = NewFromBytes(nil, "ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := NewFromBytes(nil, FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path())
	assert.ErrorIs(t, cfg.Reload(), ErrNotReloadable)

	cfg, err = NewFromBytes([]byte("a:\n  b: 1\n"), FormatYAML, WithDelim("/"), WithTag("yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Client().Int("a/b"))
	var v struct {
		B int `yaml:"b"`
	}
	require.NoError(t, cfg.Unmarshal("a", &v))
	assert.Equal(t, 1, v.B)
}

func TestReload(t *testing.T) {
	path := writeFile(t, "xguard.yml", "server:\n  addr: \":1\"\n")
	cfg, err := New(path)
	require.NoError(t, err)
	old := cfg.Client()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":2\"\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, ":2", cfg.Client().String("server.addr"))
	assert.Equal(t, ":1", old.String("server.addr"))

	// 解析失败保留旧配置
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))
	assert.ErrorIs(t, cfg.Reload(), ErrParseFailed)
	assert.Equal(t, ":2", cfg.Client().String("server.addr"))
}
