package telemetry

import (
	"fmt"
	"os"
	"runtime"
)

// EnvironmentInfo describes the host the telemetry runs in. The manager
// captures user agent and referrer once at session start and stamps the
// remaining values onto every event.
type EnvironmentInfo interface {
	CurrentURL() string
	UserAgent() string
	Referrer() string
	Viewport() (width, height int)
	Screen() (width, height int)
}

// StaticEnvironment is a fixed EnvironmentInfo. Hosts that know their display
// context fill the fields; zero values are stamped as-is.
type StaticEnvironment struct {
	URL            string
	Agent          string
	Ref            string
	ViewportWidth  int
	ViewportHeight int
	ScreenWidth    int
	ScreenHeight   int
}

var _ EnvironmentInfo = (*StaticEnvironment)(nil)

func (e *StaticEnvironment) CurrentURL() string { return e.URL }

func (e *StaticEnvironment) UserAgent() string { return e.Agent }

func (e *StaticEnvironment) Referrer() string { return e.Ref }

func (e *StaticEnvironment) Viewport() (int, int) {
	return e.ViewportWidth, e.ViewportHeight
}

func (e *StaticEnvironment) Screen() (int, int) {
	return e.ScreenWidth, e.ScreenHeight
}

// HostEnvironment builds a StaticEnvironment from the running process:
// hostname-derived URL and an OS/arch user agent. Used when no environment
// is injected.
func HostEnvironment() *StaticEnvironment {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return &StaticEnvironment{
		URL:   "app://" + hostname,
		Agent: fmt.Sprintf("streamview-telemetry (%s; %s)", runtime.GOOS, runtime.GOARCH),
	}
}
