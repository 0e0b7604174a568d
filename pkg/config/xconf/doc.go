// Package xconf 提供配置加载和热重载，基于 koanf 实现。
//
// xconf 负责文件/字节数据的加载、反序列化、命令行覆盖和热重载；
// 默认值由调用方在 Unmarshal 前写入目标结构体。
//
// # 支持的格式
//
//   - YAML：.yaml, .yml
//   - JSON：.json
//
// # 覆盖与重载
//
//	cfg, err := xconf.New("/etc/xtrack/config.yaml")
//	_ = cfg.Override("redis.addr", flagRedisAddr) // 空字符串被忽略
//	settings := defaultSettings()
//	err = cfg.Unmarshal("", &settings)
//
// Override 的值在 Reload 后重新应用，文件变更不会冲掉命令行参数。
//
// # 配置监视
//
// Watch 基于 fsnotify 监视配置文件所在目录，内置防抖。
// Watcher.Run(ctx) 阻塞直到 ctx 取消，返回后不再执行回调。
package xconf
