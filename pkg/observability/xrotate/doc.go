// Package xrotate 日志文件按大小轮转，基于 lumberjack v2。
//
// 配置了 log.file 时 xtrackd 通过 xlog.Builder.SetRotation 使用它，
// 否则日志写到 stderr。
package xrotate
