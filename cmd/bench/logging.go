package main

import (
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logging.Logger("segcache/bench")

// setupLogging applies the log level to every subsystem and, with a log
// file configured, sends all output to a rotating JSON log instead of
// stderr.
func setupLogging(s settings) error {
	if err := logging.SetLogLevel("*", s.LogLevel); err != nil {
		return err
	}
	if s.LogFile == "" {
		return nil
	}
	lvl, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	w := &lumberjack.Logger{
		LocalTime:  true,
		MaxSize:    s.LogMaxSize,
		MaxAge:     s.LogMaxAge,
		MaxBackups: s.LogMaxBackups,
		Filename:   s.LogFile,
		Compress:   true,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl)
	logging.SetPrimaryCore(core)
	return nil
}
