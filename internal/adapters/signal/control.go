package signal

import "github.com/dkeye/Meet/internal/protocol"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.send(conn, &protocol.Pong{})
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, code protocol.ErrorCode, ref protocol.Kind, message string) {
	ctl.send(conn, &protocol.Error{Code: code, Message: message, Ref: ref})
}
