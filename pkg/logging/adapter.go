package logging

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/grpclog"
)

// GRPCAdapter adapts the structured logger to grpclog.LoggerV2 so the gRPC
// library's own connection logs end up in the SDK's log stream.
type GRPCAdapter struct {
	logger    Logger
	verbosity int
}

var _ grpclog.LoggerV2 = (*GRPCAdapter)(nil)

// NewGRPCAdapter creates a grpclog adapter. verbosity is compared against
// V(l) checks; gRPC's chatty transport logs sit at level 2.
func NewGRPCAdapter(logger Logger, verbosity int) *GRPCAdapter {
	return &GRPCAdapter{
		logger:    logger.WithFields(String("component", "grpc")),
		verbosity: verbosity,
	}
}

// InstallGRPCLogger routes gRPC's internal logging through logger
func InstallGRPCLogger(logger Logger, verbosity int) {
	grpclog.SetLoggerV2(NewGRPCAdapter(logger, verbosity))
}

func (a *GRPCAdapter) Info(args ...interface{}) { a.emit(InfoLevel, fmt.Sprint(args...)) }
func (a *GRPCAdapter) Infoln(args ...interface{}) {
	a.emit(InfoLevel, fmt.Sprintln(args...))
}
func (a *GRPCAdapter) Infof(format string, args ...interface{}) {
	a.emit(InfoLevel, fmt.Sprintf(format, args...))
}

func (a *GRPCAdapter) Warning(args ...interface{}) { a.emit(WarnLevel, fmt.Sprint(args...)) }
func (a *GRPCAdapter) Warningln(args ...interface{}) {
	a.emit(WarnLevel, fmt.Sprintln(args...))
}
func (a *GRPCAdapter) Warningf(format string, args ...interface{}) {
	a.emit(WarnLevel, fmt.Sprintf(format, args...))
}

func (a *GRPCAdapter) Error(args ...interface{}) { a.emit(ErrorLevel, fmt.Sprint(args...)) }
func (a *GRPCAdapter) Errorln(args ...interface{}) {
	a.emit(ErrorLevel, fmt.Sprintln(args...))
}
func (a *GRPCAdapter) Errorf(format string, args ...interface{}) {
	a.emit(ErrorLevel, fmt.Sprintf(format, args...))
}

func (a *GRPCAdapter) Fatal(args ...interface{}) { a.logger.Fatal(fmt.Sprint(args...)) }
func (a *GRPCAdapter) Fatalln(args ...interface{}) {
	a.logger.Fatal(fmt.Sprintln(args...))
}
func (a *GRPCAdapter) Fatalf(format string, args ...interface{}) {
	a.logger.Fatal(fmt.Sprintf(format, args...))
}

// V reports whether verbosity level l is enabled
func (a *GRPCAdapter) V(l int) bool {
	return l <= a.verbosity
}

// emit logs msg, lifting gRPC's "[subsystem]" prefix into a field
func (a *GRPCAdapter) emit(level Level, msg string) {
	msg = strings.TrimRight(msg, "\n")
	fields := extractSubsystem(&msg)

	switch level {
	case WarnLevel:
		a.logger.Warn(msg, fields...)
	case ErrorLevel:
		a.logger.Error(msg, fields...)
	default:
		// gRPC is noisy at info; keep it at debug on our side
		a.logger.Debug(msg, fields...)
	}
}

// extractSubsystem strips a leading "[core]" style tag from msg and returns
// it as a field
func extractSubsystem(msg *string) []Field {
	s := *msg
	if !strings.HasPrefix(s, "[") {
		return nil
	}
	end := strings.Index(s, "]")
	if end <= 1 {
		return nil
	}
	subsystem := s[1:end]
	*msg = strings.TrimSpace(s[end+1:])
	return []Field{String("subsystem", subsystem)}
}
