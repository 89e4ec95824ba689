//go:build !unix

package probes

import (
	"runtime"

	"github.com/user/fleetpulse/internal/util"
)

func openRawSocket() (packetSocket, error) {
	return nil, util.NewError(util.CodeSocket, "raw ICMP sockets are not supported on "+runtime.GOOS)
}
