package orch

import (
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
)

func (o *Orchestrator) startAnalysis(sid core.SessionID, m *protocol.StartAnalysis) {
	if o.Analysis == nil {
		o.replyError(sid, m.Kind(), app.ErrAnalysisDenied)
		return
	}
	if m.RequestingHostID != "" && m.RequestingHostID != sid.UserID() {
		o.replyError(sid, m.Kind(), app.ErrNotHost)
		return
	}
	if err := o.Analysis.Start(sid, core.SessionOf(m.TargetID)); err != nil {
		o.replyError(sid, m.Kind(), err)
	}
}

func (o *Orchestrator) stopAnalysis(sid core.SessionID, m *protocol.StopAnalysis) {
	if o.Analysis == nil {
		o.replyError(sid, m.Kind(), app.ErrAnalysisDenied)
		return
	}
	if err := o.Analysis.Stop(sid, core.SessionOf(m.TargetID)); err != nil {
		o.replyError(sid, m.Kind(), err)
	}
}

func (o *Orchestrator) analysisAnswer(sid core.SessionID, m *protocol.ClientAnswer) {
	if o.Analysis == nil {
		return
	}
	o.Analysis.ClientAnswer(sid, core.SessionOf(m.TargetID), m.Answer)
}

func (o *Orchestrator) analysisCandidate(sid core.SessionID, m *protocol.ClientCandidate) {
	if o.Analysis == nil {
		return
	}
	o.Analysis.ClientCandidate(sid, core.SessionOf(m.TargetID), m.Candidate)
}
