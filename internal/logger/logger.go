// 包 logger：统一初始化与获取日志器；通过环境变量控制日志级别与输出格式
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// ParseLevel：解析 LOG_LEVEL 文本，未知值回退到 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New：按级别与格式（json/text）构建日志器
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup：初始化默认日志器
// 背景：集中化日志配置，服务与批处理入口共用；LOG_LEVEL/LOG_FORMAT 控制级别与格式。
// 约束：输出固定为标准错误，批处理的结果输出走标准输出，二者互不干扰。
func Setup() *slog.Logger {
	l := New(os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT"))
	Set(l)
	return l
}

// Set：替换默认日志器（测试中可注入丢弃输出的日志器）
func Set(l *slog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// L：获取默认日志器；未初始化时回退到 Setup
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return Setup()
	}
	return l
}
