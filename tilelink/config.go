package tilelink

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EndpointConfig is one host or device entry parsed out of a testbench
// configuration file.
type EndpointConfig struct {
	Protocol  Protocol
	DataWidth int
	FirstID   int
	LastID    int
	MaxSize   int
	Fifo      bool
	CanDeny   bool

	Bases   []int
	Masks   []int
	Targets []int
}

// Config is the full parsed testbench configuration: the host and device
// endpoints to instantiate and wire together.
type Config struct {
	Hosts   []EndpointConfig
	Devices []EndpointConfig
}

// ParseConfig reads the flat, YAML-flavoured configuration format the
// TileLink testbench uses: top-level "hosts:"/"devices:" sections, each
// holding a list of endpoints introduced by a line starting with '-',
// with "Name: value" pairs inside. It intentionally does not accept
// general YAML — the grammar (list items keyed by a leading hyphen on
// their own line, Base/Mask/Target keys holding space-separated integer
// lists) is particular to this format, not a YAML subset a generic parser
// would help with.
func ParseConfig(r io.Reader) (Config, error) {
	var config Config

	section := ""
	var component []string

	flush := func() error {
		if len(component) == 0 {
			return nil
		}
		ep, err := parseEndpoint(component)
		if err != nil {
			return err
		}
		switch section {
		case "host":
			config.Hosts = append(config.Hosts, ep)
		case "device":
			config.Devices = append(config.Devices, ep)
		default:
			return errors.Errorf("tilelink: endpoint defined before a hosts:/devices: section")
		}
		component = nil
		return nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if isEmptyConfigLine(line) {
			continue
		}

		switch {
		case strings.HasPrefix(line, "hosts:"):
			if err := flush(); err != nil {
				return config, err
			}
			section = "host"
		case strings.HasPrefix(line, "devices:"):
			if err := flush(); err != nil {
				return config, err
			}
			section = "device"
		default:
			stripped := stripWhitespace(line)
			if strings.HasPrefix(stripped, "-") {
				if err := flush(); err != nil {
					return config, err
				}
				stripped = stripped[1:]
			}
			component = append(component, stripped)
		}
	}
	if err := scanner.Err(); err != nil {
		return config, errors.Wrap(err, "tilelink: reading configuration")
	}

	if err := flush(); err != nil {
		return config, err
	}

	return config, nil
}

func isEmptyConfigLine(line string) bool {
	return stripWhitespace(removeComment(line)) == ""
}

func removeComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func stripWhitespace(line string) string {
	return strings.TrimSpace(line)
}

func parseEndpoint(lines []string) (EndpointConfig, error) {
	var ep EndpointConfig

	for _, raw := range lines {
		line := removeComment(raw)
		if stripWhitespace(line) == "" {
			continue
		}

		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return ep, errors.Errorf("tilelink: configuration line missing ':' : %q", raw)
		}

		name := stripWhitespace(line[:idx])
		value := stripWhitespace(line[idx+1:])

		var err error
		switch {
		case name == "Protocol":
			ep.Protocol, err = parseProtocol(value)
		case name == "DataWidth":
			ep.DataWidth, err = strconv.Atoi(value)
		case name == "FirstID":
			ep.FirstID, err = strconv.Atoi(value)
		case name == "LastID":
			ep.LastID, err = strconv.Atoi(value)
		case name == "MaxSize":
			ep.MaxSize, err = strconv.Atoi(value)
		case name == "Fifo":
			ep.Fifo, err = parseConfigBool(value)
		case name == "CanDeny":
			ep.CanDeny, err = parseConfigBool(value)
		case strings.HasSuffix(name, "Base"):
			ep.Bases, err = parseIntList(value)
		case strings.HasSuffix(name, "Mask"):
			ep.Masks, err = parseIntList(value)
		case strings.HasSuffix(name, "Target"):
			ep.Targets, err = parseIntList(value)
		default:
			// Unknown parameters are ignored, not fatal, matching the
			// original parser's tolerance for forward-compatible configs.
			continue
		}
		if err != nil {
			return ep, errors.Wrapf(err, "tilelink: parsing %q", raw)
		}
	}

	return ep, nil
}

func parseProtocol(value string) (Protocol, error) {
	switch value {
	case "TL-C":
		return ProtocolTLC, nil
	case "TL-C-ROM-TERM":
		return ProtocolTLCROMTerm, nil
	case "TL-C-IO-TERM":
		return ProtocolTLCIOTerm, nil
	case "TL-UH":
		return ProtocolTLUH, nil
	case "TL-UL":
		return ProtocolTLUL, nil
	default:
		return 0, errors.Errorf("unknown protocol %q", value)
	}
}

func parseConfigBool(value string) (bool, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

func parseIntList(value string) ([]int, error) {
	fields := strings.Fields(value)
	result := make([]int, 0, len(fields))
	for _, f := range fields {
		// Base 0 lets address/mask fields be written in hex (0x...) or
		// decimal, matching how these configs are written by hand.
		n, err := strconv.ParseInt(f, 0, 64)
		if err != nil {
			return nil, err
		}
		result = append(result, int(n))
	}
	return result, nil
}
