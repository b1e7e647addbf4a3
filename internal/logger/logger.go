// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// Поддерживается логирование времени выполнения функций.
package logger

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	debug  bool
	prefix string
)

func init() {
	configure(os.Getenv("LOG_LEVEL"))
}

// configure пересобирает zap-логгер под уровень (debug/trace включают development-энкодер).
func configure(level string) {
	var (
		l   *zap.Logger
		err error
	)
	isDebug := level == "debug" || level == "trace"
	if isDebug {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err = cfg.Build()
	}
	if err != nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	debug = isDebug
	if prefix != "" {
		l = l.Named(prefix)
	}
	sugar = l.Sugar()
	mu.Unlock()
}

// SetLevel переключает уровень после загрузки конфига.
func SetLevel(level string) {
	configure(level)
}

// SetPrefix задаёт префикс для всех последующих логов (например "api").
func SetPrefix(p string) {
	mu.Lock()
	defer mu.Unlock()
	prefix = p
	sugar = base.Named(p).Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Info(v ...any) {
	get().Info(v...)
}

func Infof(format string, v ...any) {
	get().Infof(format, v...)
}

func Debugf(format string, v ...any) {
	get().Debugf(format, v...)
}

func Error(v ...any) {
	get().Error(v...)
}

func Errorf(format string, v ...any) {
	get().Errorf(format, v...)
}

// Sync сбрасывает буферы zap; вызывать перед выходом из процесса.
func Sync() {
	_ = get().Sync()
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	mu.RLock()
	verbose := debug
	mu.RUnlock()
	if verbose || elapsed >= 100*time.Millisecond {
		get().Infow("duration", "fn", fn, "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
