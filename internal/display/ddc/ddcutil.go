package ddc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// VCP feature codes used by the daemon.
const (
	VCPBrightness byte = 0x10
	VCPContrast   byte = 0x12
)

// ErrUnsupported reports a VCP feature the monitor does not implement.
var ErrUnsupported = errors.New("vcp feature unsupported")

// Executor abstracts command execution so tests can replay ddcutil output.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// Display is one entry of `ddcutil detect --terse`.
type Display struct {
	Number       int
	Bus          int
	Connector    string
	Manufacturer string
	Model        string
	Serial       string
	Valid        bool
}

// ID is the stable identifier for the display. Model and serial survive bus
// renumbering; the bus is the fallback when the EDID carries no serial.
func (d Display) ID() string {
	if d.Serial != "" {
		return "ddc:" + d.Model + ":" + d.Serial
	}
	return "ddc:bus-" + strconv.Itoa(d.Bus)
}

// Description is a human readable label for the display.
func (d Display) Description() string {
	label := strings.TrimSpace(d.Manufacturer + " " + d.Model)
	if label == "" {
		label = d.Connector
	}
	if label == "" {
		label = "i2c-" + strconv.Itoa(d.Bus)
	}
	return label
}

// Client runs ddcutil.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// NewClient constructs a client for the given ddcutil binary.
func NewClient(binary string, timeout time.Duration) *Client {
	return NewClientWithExecutor(binary, timeout, nil)
}

// NewClientWithExecutor allows injecting a custom executor for testing.
func NewClientWithExecutor(binary string, timeout time.Duration, executor Executor) *Client {
	if executor == nil {
		executor = commandExecutor{}
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ddcutil"
	}
	return &Client{binary: binary, timeout: timeout, exec: executor}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s %s: %w: %s", c.binary, args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, fmt.Errorf("%s %s: %w", c.binary, args[0], err)
	}
	return out, nil
}

// Detect lists the displays ddcutil can see, including ones it cannot talk to.
func (c *Client) Detect(ctx context.Context) ([]Display, error) {
	out, err := c.run(ctx, "detect", "--terse")
	if err != nil {
		return nil, err
	}
	return parseDetect(out), nil
}

// GetVCP reads a continuous VCP feature and returns its current and maximum value.
func (c *Client) GetVCP(ctx context.Context, bus int, code byte) (int, int, error) {
	out, err := c.run(ctx, "getvcp", fmt.Sprintf("%02x", code), "--brief", "--bus", strconv.Itoa(bus))
	if err != nil {
		return 0, 0, err
	}
	return parseGetVCP(out, code)
}

// SetVCP writes a continuous VCP feature.
func (c *Client) SetVCP(ctx context.Context, bus int, code byte, value int) error {
	_, err := c.run(ctx, "setvcp", fmt.Sprintf("%02x", code), strconv.Itoa(value), "--bus", strconv.Itoa(bus))
	return err
}

// parseDetect reads the block format of `ddcutil detect --terse`:
//
//	Display 1
//	   I2C bus:  /dev/i2c-4
//	   DRM connector:  card0-DP-1
//	   Monitor:  DEL:DELL U2415:7MT0155Q0AEL
//
// A block headed "Invalid display" is reported with Valid=false.
func parseDetect(data []byte) []Display {
	var (
		displays []Display
		current  *Display
	)
	flush := func() {
		if current != nil && current.Bus >= 0 {
			displays = append(displays, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			flush()
			switch {
			case strings.HasPrefix(trimmed, "Display "):
				n, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "Display ")))
				current = &Display{Number: n, Bus: -1, Valid: true}
			case strings.HasPrefix(trimmed, "Invalid display"):
				current = &Display{Bus: -1}
			}
			continue
		}
		if current == nil {
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "I2C bus":
			if n, err := strconv.Atoi(strings.TrimPrefix(value, "/dev/i2c-")); err == nil {
				current.Bus = n
			}
		case "DRM connector":
			current.Connector = value
		case "Monitor":
			parts := strings.SplitN(value, ":", 3)
			if len(parts) > 0 {
				current.Manufacturer = strings.TrimSpace(parts[0])
			}
			if len(parts) > 1 {
				current.Model = strings.TrimSpace(parts[1])
			}
			if len(parts) > 2 {
				current.Serial = strings.TrimSpace(parts[2])
			}
		}
	}
	flush()
	return displays
}

// parseGetVCP reads `getvcp --brief` output such as "VCP 10 C 50 100".
func parseGetVCP(data []byte, code byte) (int, int, error) {
	want := fmt.Sprintf("%02X", code)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != "VCP" || !strings.EqualFold(fields[1], want) {
			continue
		}
		switch fields[2] {
		case "C":
			if len(fields) < 5 {
				return 0, 0, fmt.Errorf("vcp %s: truncated reply %q", want, scanner.Text())
			}
			current, err := strconv.Atoi(fields[3])
			if err != nil {
				return 0, 0, fmt.Errorf("vcp %s: current value: %w", want, err)
			}
			maximum, err := strconv.Atoi(fields[4])
			if err != nil {
				return 0, 0, fmt.Errorf("vcp %s: max value: %w", want, err)
			}
			return current, maximum, nil
		case "ERR":
			return 0, 0, fmt.Errorf("vcp %s: %w", want, ErrUnsupported)
		default:
			return 0, 0, fmt.Errorf("vcp %s: unexpected type %q", want, fields[2])
		}
	}
	return 0, 0, fmt.Errorf("vcp %s: no reply", want)
}

var lookPath = exec.LookPath
