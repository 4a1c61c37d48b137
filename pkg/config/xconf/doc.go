// Package xconf 基于 koanf 加载 xguard 的服务配置。
//
// 支持 YAML（.yaml/.yml）与 JSON（.json）两种格式，可从文件或字节创建。
// 加载后通过 Load 把某一段配置解码到带默认值的结构体上：
// 配置中未出现的字段保留原值，若目标实现了 Validator 则解码后立即校验。
//
//	cfg, err := xconf.New("/etc/xguard/xguard.yaml")
//	qc := xqueue.DefaultConfig()
//	err = xconf.Load(cfg, "queue", &qc)
//
// 时长字段可写成 "5m"、"250ms" 等字符串，实现 encoding.TextUnmarshaler 的类型
// （如 xlog.Level）按文本解码。
//
// # 热重载
//
// Watcher 基于 fsnotify 监视配置文件所在目录，防抖后调用 Reload 并回调。
// Run 阻塞到 ctx 取消，返回后不会再有回调，适合交给 xrun.Group 管理。
// 从字节创建的配置不支持重载和监视。
package xconf
