package wa

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
)

// logAdapter bridges whatsmeow's logger interface onto our channel-tagged
// logger so protocol internals land in the same stream as everything else.
type logAdapter struct {
	component string
}

func newLogger(component string) waLog.Logger {
	return logAdapter{component: component}
}

func (l logAdapter) Errorf(msg string, args ...any) {
	logger.ErrorC(l.component, fmt.Sprintf(msg, args...))
}

func (l logAdapter) Warnf(msg string, args ...any) {
	logger.WarnC(l.component, fmt.Sprintf(msg, args...))
}

func (l logAdapter) Infof(msg string, args ...any) {
	logger.InfoC(l.component, fmt.Sprintf(msg, args...))
}

func (l logAdapter) Debugf(msg string, args ...any) {
	logger.DebugC(l.component, fmt.Sprintf(msg, args...))
}

func (l logAdapter) Sub(module string) waLog.Logger {
	return logAdapter{component: l.component + "/" + module}
}
