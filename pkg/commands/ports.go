package commands

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuti-cli/tuti/pkg/config"
	"github.com/tuti-cli/tuti/pkg/utils"
)

// PortConflict describes a proposed port that already has a local listener.
type PortConflict struct {
	Service string
	UsedBy  string
}

// PortConflictDetector probes local TCP ports before a stack starts. It is
// purely diagnostic: it reports conflicts as data and never blocks a start.
type PortConflictDetector struct {
	Log    *logrus.Entry
	Config *config.AppConfig
	Runner Runner
}

// NewPortConflictDetector port conflict detector
func NewPortConflictDetector(log *logrus.Entry, appConfig *config.AppConfig, runner Runner) *PortConflictDetector {
	return &PortConflictDetector{Log: log, Config: appConfig, Runner: runner}
}

// CheckPortConflicts probes each proposed service→port mapping with a short
// TCP connect. An accepted connection means the port is occupied; the owning
// process is then resolved best-effort, falling back to "unknown".
func (d *PortConflictDetector) CheckPortConflicts(ctx context.Context, servicePorts map[string]int) map[int]PortConflict {
	timeout := time.Duration(d.Config.UserConfig.Timeouts.PortProbeMillis) * time.Millisecond
	conflicts := map[int]PortConflict{}

	for service, port := range servicePorts {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), timeout)
		if err != nil {
			continue
		}
		conn.Close()

		conflicts[port] = PortConflict{
			Service: service,
			UsedBy:  d.resolveOwner(ctx, port),
		}
	}

	return conflicts
}

// resolveOwner asks lsof which process listens on the port. Unsupported
// platforms and lookup failures both degrade to "unknown" rather than
// failing the check.
func (d *PortConflictDetector) resolveOwner(ctx context.Context, port int) string {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		return "unknown"
	}

	output, err := d.Runner.Output(ctx, []string{
		"lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-Fc",
	})
	if err != nil {
		d.Log.WithField("port", port).Debug("could not resolve port owner")
		return "unknown"
	}

	// -Fc output has one field per line; command-name fields start with 'c'.
	for _, line := range utils.SplitLines(output) {
		if strings.HasPrefix(line, "c") && len(line) > 1 {
			return line[1:]
		}
	}
	return "unknown"
}
