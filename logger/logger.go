package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide structured logger. It defaults to a no-op logger
// so library code can log before InitLogger runs (and in tests).
var Logger = zap.NewNop()

// InitLogger configures the global logger to write JSON entries to logFile at
// the given level. An empty logFile logs to stderr.
func InitLogger(logFile string, level string) error {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(level)); err != nil {
		return err
	}

	var sink zapcore.WriteSyncer = os.Stderr
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		sink = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), sink, atom)
	Logger = zap.New(core, zap.AddCaller())

	return nil
}
