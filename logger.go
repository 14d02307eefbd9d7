package vapoursynth

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger. It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the package logger. Engine callbacks log through it,
// so it should be set before the first core is created.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

// MessageType is the severity of an engine log message.
type MessageType int

const (
	MessageDebug       = MessageType(abi.MessageDebug)
	MessageInformation = MessageType(abi.MessageInformation)
	MessageWarning     = MessageType(abi.MessageWarning)
	MessageCritical    = MessageType(abi.MessageCritical)
	MessageFatal       = MessageType(abi.MessageFatal)
)

func (t MessageType) String() string {
	switch t {
	case MessageDebug:
		return "debug"
	case MessageInformation:
		return "information"
	case MessageWarning:
		return "warning"
	case MessageCritical:
		return "critical"
	case MessageFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Level maps the engine severity onto a zap level. Fatal maps to Error
// because the engine aborts the process itself after delivering it.
func (t MessageType) Level() zapcore.Level {
	switch t {
	case MessageDebug:
		return zapcore.DebugLevel
	case MessageInformation:
		return zapcore.InfoLevel
	case MessageWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// LogHandlerFunc receives engine log messages.
type LogHandlerFunc func(t MessageType, msg string)

// ZapLogHandler forwards engine messages to l.
func ZapLogHandler(l *zap.Logger) LogHandlerFunc {
	l = l.With(zap.String("source", "vapoursynth"))
	return func(t MessageType, msg string) {
		if ce := l.Check(t.Level(), msg); ce != nil {
			if t == MessageFatal {
				ce.Write(zap.Bool("fatal", true))
				return
			}
			ce.Write()
		}
	}
}
