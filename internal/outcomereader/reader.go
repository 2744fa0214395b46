// Package outcomereader turns a Checker subprocess's framed stdout stream
// into the single domain.Outcome the Orchestrator applies to a host
// (spec.md §4.3).
package outcomereader

import (
	"fmt"
	"io"

	"github.com/fediwatch/crawler/internal/domain"
	"github.com/fediwatch/crawler/internal/ipc"
	"github.com/fediwatch/crawler/internal/logger"
)

// Config bounds what a single read accepts.
type Config struct {
	MaxPeersPerCheck int
}

// Read consumes every frame r produces until EOF, returning the terminal
// outcome for the check. A Checker emits at most one State frame, and its
// Peer frames follow an Alive State rather than precede it, so peers are
// accumulated as they arrive, in whatever order, and attached to the State
// frame once the stream ends.
//
// A malformed or oversized frame aborts the read early with
// OutcomeProtocolError (spec.md §4.3: "oversized or malformed frames
// terminate the read and produce ProtocolError"). A Checker that exits
// before writing any State frame yields OutcomeDead ("no evidence of
// life").
func Read(r *ipc.Reader, cfg Config, log logger.Logger, host string) domain.Outcome {
	var state *ipc.State
	var peers []string
	dropped := 0

	for {
		msg, err := r.ReadMessage()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Warn("malformed checker output", logger.String("host", host), logger.Error(err))
			return domain.OutcomeProtocolError{Reason: err.Error()}
		}

		switch msg.Kind {
		case ipc.KindState:
			state = msg.State
		case ipc.KindPeer:
			if len(peers) < cfg.MaxPeersPerCheck {
				peers = append(peers, msg.Peer)
			} else {
				dropped++
			}
		}
	}

	if dropped > 0 {
		log.Info("dropped excess peers", logger.String("host", host), logger.Int("dropped", dropped))
	}

	if state == nil {
		return domain.OutcomeDead{Reason: "checker exited without reporting a state"}
	}
	return toOutcome(*state, peers)
}

func toOutcome(state ipc.State, peers []string) domain.Outcome {
	switch state.Tag {
	case ipc.StateAlive:
		return domain.OutcomeAlive{SoftwareName: state.SoftwareName, Peers: peers}
	case ipc.StateDead:
		return domain.OutcomeDead{Reason: state.Reason}
	case ipc.StateMovedTemp:
		return domain.OutcomeMovedTemp{Target: state.Target}
	case ipc.StateMovedPerm:
		return domain.OutcomeMovedPerm{Target: state.Target}
	case ipc.StatePrivateOptOut:
		return domain.OutcomePrivateOptOut{}
	case ipc.StateRobotsDenied:
		return domain.OutcomeRobotsDenied{}
	case ipc.StateOriginMismatch:
		return domain.OutcomeOriginMismatch{Target: state.Target}
	case ipc.StateProtocolError:
		return domain.OutcomeProtocolError{Reason: state.Reason}
	default:
		return domain.OutcomeProtocolError{Reason: fmt.Sprintf("unknown state tag %q", state.Tag)}
	}
}
