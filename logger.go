package libchat

// Logger is the leveled, field-aware logging contract the library writes to.
// Adapters for logrus/zap style loggers only need to satisfy this interface.
type Logger interface {
	WithField(key string, value any) Logger
	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)
}

type nopLogger struct{}

func (nopLogger) WithField(string, any) Logger { return nopLogger{} }
func (nopLogger) Debug(...any)                 {}
func (nopLogger) Debugf(string, ...any)        {}
func (nopLogger) Debugln(...any)               {}
func (nopLogger) Info(...any)                  {}
func (nopLogger) Infof(string, ...any)         {}
func (nopLogger) Infoln(...any)                {}
func (nopLogger) Warn(...any)                  {}
func (nopLogger) Warnf(string, ...any)         {}
func (nopLogger) Warnln(...any)                {}
func (nopLogger) Error(...any)                 {}
func (nopLogger) Errorf(string, ...any)        {}
func (nopLogger) Errorln(...any)               {}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
