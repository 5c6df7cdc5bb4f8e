package chess

import (
	"strings"

	"github.com/park285/capture-challenge/internal/chess/uci"
)

func toUCILimits(l Limits) uci.Limits {
	return uci.Limits{
		Depth:          l.Depth,
		MoveTimeMillis: l.MoveTimeMillis,
		NodeCap:        l.NodeCap,
	}
}

// FormatGoCommand renders the go line a request would send, for diagnostics.
func FormatGoCommand(l Limits) (string, error) {
	args, err := uci.BuildGoTokens(toUCILimits(l))
	if err != nil {
		return "", err
	}
	return strings.Join(args, " "), nil
}
