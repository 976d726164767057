package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekehi/ekehi-sync-server/cacherepo"
	"github.com/ekehi/ekehi-sync-server/dal"
	"github.com/ekehi/ekehi-sync-server/remote"
	"github.com/ekehi/ekehi-sync-server/repos"
	"github.com/ekehi/ekehi-sync-server/syncmgr"
	"github.com/ekehi/ekehi-sync-server/syncserver"
	"github.com/ekehi/ekehi-sync-server/usecase"
	"github.com/ekehi/ekehi-sync-server/utils"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  All subsystem loggers share a single backend sink
// that writes to both standard output and the log rotator.  Before the log
// rotator has been initialized with initLogRotator, output only goes to
// standard output.
var (
	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	logSink = zapcore.Lock(zapcore.AddSync(logWriter{}))

	subsystemLevels = map[string]zap.AtomicLevel{
		"SYND": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"DALS": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"CREP": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"REPO": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"SYNC": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"USEC": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"REMT": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"SSRV": zap.NewAtomicLevelAt(zapcore.InfoLevel),
		"UTIL": zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}

	syncdLog = newSubsystemLogger("SYND")
	dalsLog  = newSubsystemLogger("DALS")
	crepLog  = newSubsystemLogger("CREP")
	repoLog  = newSubsystemLogger("REPO")
	syncLog  = newSubsystemLogger("SYNC")
	usecLog  = newSubsystemLogger("USEC")
	remtLog  = newSubsystemLogger("REMT")
	ssrvLog  = newSubsystemLogger("SSRV")
	utilLog  = newSubsystemLogger("UTIL")
)

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]*zap.SugaredLogger{
	"SYND": syncdLog,
	"DALS": dalsLog,
	"CREP": crepLog,
	"REPO": repoLog,
	"SYNC": syncLog,
	"USEC": usecLog,
	"REMT": remtLog,
	"SSRV": ssrvLog,
	"UTIL": utilLog,
}

// Initialize package-global logger variables.
func init() {
	dal.UseLogger(dalsLog)
	cacherepo.UseLogger(crepLog)
	repos.UseLogger(repoLog)
	syncmgr.UseLogger(syncLog)
	usecase.UseLogger(usecLog)
	remote.UseLogger(remtLog)
	syncserver.UseLogger(ssrvLog)
	utils.UseLogger(utilLog)
}

// newSubsystemLogger creates a sugared logger for the given subsystem that
// writes to the shared backend sink at the subsystem's atomic level.
func newSubsystemLogger(subsystem string) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " "

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), logSink,
		subsystemLevels[subsystem])
	return zap.New(core).Named(subsystem).Sugar()
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variable is used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 30)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}

	logRotator = r
}

// parseLogLevel converts a textual log level to the corresponding zap level.
// Unrecognized levels map to info since callers validate beforehand.
func parseLogLevel(logLevel string) zapcore.Level {
	switch logLevel {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	level, ok := subsystemLevels[subsystemID]
	if !ok {
		return
	}

	level.SetLevel(parseLogLevel(logLevel))
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLevels {
		setLogLevel(subsystemID, logLevel)
	}
}
