package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/onein50million/counter-attack/internal/state"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage: counter-attack [-synctest N] [-http addr] [-player 0|1] <local-udp-port> <remote-host:port>")

// Args is the parsed command line.
type Args struct {
	LocalPort int
	Remote    *net.UDPAddr
	// Player is the local slot. Without -player the peer on the lower port
	// plays slot 0.
	Player state.Handle
	// SyncTest and HTTPAddr override the environment when set.
	SyncTest int
	HTTPAddr string
}

// ParseArgs parses the arguments after the program name. Network play needs
// both positional arguments; a sync test needs none.
func ParseArgs(args []string) (Args, error) {
	var parsed Args
	fs := flag.NewFlagSet("counter-attack", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&parsed.SyncTest, "synctest", 0, "run a local determinism check rewinding N frames")
	fs.StringVar(&parsed.HTTPAddr, "http", "", "diagnostics listen address")
	player := fs.Int("player", -1, "local player slot, 0 or 1")
	if err := fs.Parse(args); err != nil {
		return Args{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if parsed.SyncTest < 0 {
		return Args{}, fmt.Errorf("%w: synctest must not be negative", ErrUsage)
	}

	rest := fs.Args()
	if parsed.SyncTest > 0 && len(rest) == 0 {
		return parsed, nil
	}
	if len(rest) != 2 {
		return Args{}, fmt.Errorf("%w: got %d positional arguments", ErrUsage, len(rest))
	}

	port, err := strconv.Atoi(rest[0])
	if err != nil || port <= 0 || port > 65535 {
		return Args{}, fmt.Errorf("%w: invalid local port %q", ErrUsage, rest[0])
	}
	if _, _, err := net.SplitHostPort(rest[1]); err != nil {
		return Args{}, fmt.Errorf("%w: invalid remote address %q: %v", ErrUsage, rest[1], err)
	}
	remote, err := net.ResolveUDPAddr("udp", rest[1])
	if err != nil {
		return Args{}, fmt.Errorf("%w: resolve remote address %q: %v", ErrUsage, rest[1], err)
	}
	parsed.LocalPort = port
	parsed.Remote = remote

	switch {
	case *player == 0 || *player == 1:
		parsed.Player = state.Handle(*player)
	case *player != -1:
		return Args{}, fmt.Errorf("%w: player must be 0 or 1, got %d", ErrUsage, *player)
	case port < remote.Port:
		parsed.Player = 0
	case port > remote.Port:
		parsed.Player = 1
	default:
		return Args{}, fmt.Errorf("%w: both peers use port %d, pass -player", ErrUsage, port)
	}
	return parsed, nil
}
