package telemetry

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// GPUProbe reads an auxiliary GPU temperature.
type GPUProbe interface {
	Temperature(ctx context.Context) (float64, error)
}

var vcgenTemp = regexp.MustCompile(`temp=([\d.]+)`)

var errNoTemperature = errors.New("no temperature in probe output")

// VCGenCmd reads the Raspberry Pi VideoCore temperature via `vcgencmd measure_temp`.
type VCGenCmd struct {
	Path    string        // defaults to "vcgencmd" on $PATH
	Timeout time.Duration // defaults to 2s
}

// Temperature runs the probe and parses "temp=48.3'C".
func (v VCGenCmd) Temperature(ctx context.Context) (float64, error) {
	path := v.Path
	if path == "" {
		path = "vcgencmd"
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "measure_temp").Output()
	if err != nil {
		return 0, err
	}
	return parseVCGenTemp(string(out))
}

func parseVCGenTemp(out string) (float64, error) {
	m := vcgenTemp.FindStringSubmatch(out)
	if m == nil {
		return 0, errNoTemperature
	}
	return strconv.ParseFloat(m[1], 64)
}
