// Package temporalx bridges Temporal SDK plumbing with the rest of the
// worker: logging adaptation and client construction.
package temporalx

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// ZapAdapter adapts a zap logger to the Temporal SDK logger interface.
type ZapAdapter struct {
	zl *zap.SugaredLogger
}

// NewZapAdapter wraps the given logger. Caller stack skipping accounts
// for the adapter frame so source locations point at the call site.
func NewZapAdapter(zl *zap.Logger) *ZapAdapter {
	return &ZapAdapter{zl: zl.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *ZapAdapter) Debug(msg string, keyvals ...interface{}) {
	a.zl.Debugw(msg, keyvals...)
}

func (a *ZapAdapter) Info(msg string, keyvals ...interface{}) {
	a.zl.Infow(msg, keyvals...)
}

func (a *ZapAdapter) Warn(msg string, keyvals ...interface{}) {
	a.zl.Warnw(msg, keyvals...)
}

func (a *ZapAdapter) Error(msg string, keyvals ...interface{}) {
	a.zl.Errorw(msg, keyvals...)
}

var _ log.Logger = (*ZapAdapter)(nil)

// Dial connects to the Temporal frontend with zap-backed SDK logging.
func Dial(hostPort, namespace string, logger *zap.Logger) (client.Client, error) {
	return client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    NewZapAdapter(logger),
	})
}
