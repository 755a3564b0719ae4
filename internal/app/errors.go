package app

import (
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pkg/errors"
)

var (
	ErrNotHost        = errors.New("not the host of this room")
	ErrNoSuchRequest  = errors.New("no such join request")
	ErrNoSuchRoom     = errors.New("no such room")
	ErrNoSuchTarget   = errors.New("no such target")
	ErrNoSuchSession  = errors.New("no such session")
	ErrAnalysisBusy   = errors.New("analysis already in progress")
	ErrBadRequest     = errors.New("bad request")
	ErrInAnotherRoom  = errors.New("session is in another room")
	ErrNotInRoom      = errors.New("session is not in a room")
	ErrAnalysisDenied = errors.New("analysis disabled")
)

// Code maps an error to the code sent back to the client.
func Code(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, ErrNotHost):
		return protocol.CodeNotHost
	case errors.Is(err, ErrNoSuchRequest):
		return protocol.CodeNoSuchRequest
	case errors.Is(err, ErrNoSuchRoom), errors.Is(err, ErrNotInRoom):
		return protocol.CodeNoSuchRoom
	case errors.Is(err, ErrNoSuchTarget):
		return protocol.CodeNoSuchTarget
	case errors.Is(err, ErrAnalysisBusy):
		return protocol.CodeAnalysisBusy
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInAnotherRoom), errors.Is(err, ErrAnalysisDenied):
		return protocol.CodeBadRequest
	default:
		return protocol.CodeInternal
	}
}
