package checker

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/fediwatch/crawler/internal/ipc"
	"github.com/fediwatch/crawler/internal/logger"
)

// Run performs one bounded probe of host and writes its outcome as
// length-delimited ipc.Message frames to w (spec.md §4.2). It returns an
// error only for a framing/write failure against w itself — every probe
// failure (robots denial, timeout, malformed metadata, and so on) is
// reported as a State frame, never as a Go error, so the caller (the
// hidden "check" subprocess entrypoint) can exit 0 whenever reporting
// succeeded.
func Run(ctx context.Context, w io.Writer, log logger.Logger, cfg Config, host string) error {
	writer := ipc.NewWriter(w)

	client, err := NewClient(ctx, cfg, host)
	if err != nil {
		return reportFailure(writer, log, host, err)
	}

	return runCheck(ctx, writer, log, cfg, host, client)
}

// runCheck is Run's body, taking an already-built Client so tests can
// supply one wired to an httptest server's trusted transport instead of
// Run's own from-scratch one (which performs real TLS verification).
func runCheck(ctx context.Context, writer *ipc.Writer, log logger.Logger, cfg Config, host string, client *Client) error {
	software, err := fetchSoftwareName(ctx, client, cfg, host)
	if err != nil {
		return reportFailure(writer, log, host, err)
	}
	log.Info("resolved software", logger.String("host", host), logger.String("software", software))

	if isPrivate(ctx, client, cfg, host, software) {
		log.Info("instance opted out of listing", logger.String("host", host))
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StatePrivateOptOut}))
	}

	if err := writer.WriteMessage(ipc.NewStateMessage(ipc.State{
		Tag:          ipc.StateAlive,
		SoftwareName: software,
	})); err != nil {
		return err
	}

	peers, err := fetchPeers(ctx, client, cfg, host, software, cfg.MaxPeersPerCheck)
	if err != nil {
		// Alive has already been reported; a peers-fetch failure doesn't
		// retract that, it just means this cycle discovers no new hosts.
		log.Warn("peers fetch failed", logger.String("host", host), logger.Error(err))
		return nil
	}

	for _, peer := range peers {
		if err := writer.WriteMessage(ipc.NewPeerMessage(peer)); err != nil {
			return err
		}
	}
	return nil
}

// reportFailure maps a probe error to the terminal State frame spec.md's
// Outcome Reader expects, writes it, and returns any error writing it.
func reportFailure(writer *ipc.Writer, log logger.Logger, host string, err error) error {
	var robotsErr *RobotsDeniedError
	var movedErr *MovedError
	var originErr *OriginMismatchError
	var protocolErr *ProtocolError
	var tooManyErr *TooManyRedirectsError
	var bodyTooLargeErr *BodyTooLargeError

	switch {
	case errors.As(err, &robotsErr):
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateRobotsDenied}))

	case errors.As(err, &movedErr):
		if movedErr.Permanent {
			return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateMovedPerm, Target: movedErr.Target}))
		}
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateMovedTemp, Target: movedErr.Target}))

	case errors.As(err, &originErr):
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateOriginMismatch, Target: originErr.Target}))

	case errors.As(err, &protocolErr):
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateProtocolError, Reason: protocolErr.Reason}))

	case errors.As(err, &tooManyErr):
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateProtocolError, Reason: err.Error()}))

	case errors.As(err, &bodyTooLargeErr):
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateProtocolError, Reason: err.Error()}))

	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			log.Info("check timed out", logger.String("host", host))
		} else {
			log.Info("check failed", logger.String("host", host), logger.Error(err))
		}
		return writer.WriteMessage(ipc.NewStateMessage(ipc.State{Tag: ipc.StateDead, Reason: err.Error()}))
	}
}
