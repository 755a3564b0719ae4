package protocol

import (
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

type JoinRoom struct {
	RoomID       domain.RoomID `json:"room_id" validate:"required,max=64"`
	DisplayName  string        `json:"display_name" validate:"max=36"`
	CreateLocked bool          `json:"create_locked_room"`
}

type LeaveRoom struct {
	RoomID domain.RoomID `json:"room_id" validate:"required"`
}

type AdmissionDecision struct {
	RoomID      domain.RoomID   `json:"room_id" validate:"required"`
	RequesterID domain.UserID   `json:"requester_id" validate:"required"`
	Decision    domain.Decision `json:"decision" validate:"oneof=accept deny"`
}

// Link states participants report about a peer.
const (
	PeerConnected    = "connected"
	PeerReconnecting = "reconnecting"
	PeerFailed       = "failed"
	PeerClosed       = "closed"
)

type PeerState struct {
	RoomID   domain.RoomID `json:"room_id" validate:"required"`
	TargetID domain.UserID `json:"target_id" validate:"required"`
	State    string        `json:"state" validate:"oneof=connected reconnecting failed closed"`
}

type SendMessage struct {
	RoomID domain.RoomID `json:"room_id" validate:"required"`
	Text   string        `json:"text" validate:"required,max=2000"`
}

type HostEndMeeting struct {
	RoomID domain.RoomID `json:"room_id" validate:"required"`
}

type StartAnalysis struct {
	TargetID         domain.UserID `json:"target_id" validate:"required"`
	RequestingHostID domain.UserID `json:"requesting_host_id,omitempty"`
}

type StopAnalysis struct {
	TargetID domain.UserID `json:"target_id" validate:"required"`
}

type ClientAnswer struct {
	Answer   webrtc.SessionDescription `json:"answer"`
	TargetID domain.UserID             `json:"analysis_target_sid" validate:"required"`
}

type ClientCandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	TargetID  domain.UserID           `json:"analysis_target_sid" validate:"required"`
}

type Ping struct{}

// Offer, Answer and Candidate carry TargetID from the sender and FromID once relayed.

type Offer struct {
	RoomID   domain.RoomID `json:"room_id" validate:"required"`
	TargetID domain.UserID `json:"target_id,omitempty" validate:"required_without=FromID"`
	FromID   domain.UserID `json:"from_id,omitempty"`
	SDP      string        `json:"sdp" validate:"required"`
}

type Answer struct {
	RoomID   domain.RoomID `json:"room_id" validate:"required"`
	TargetID domain.UserID `json:"target_id,omitempty" validate:"required_without=FromID"`
	FromID   domain.UserID `json:"from_id,omitempty"`
	SDP      string        `json:"sdp" validate:"required"`
}

type Candidate struct {
	RoomID    domain.RoomID           `json:"room_id" validate:"required"`
	TargetID  domain.UserID           `json:"target_id,omitempty" validate:"required_without=FromID"`
	FromID    domain.UserID           `json:"from_id,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (*JoinRoom) Kind() Kind          { return KindJoinRoom }
func (*LeaveRoom) Kind() Kind         { return KindLeaveRoom }
func (*AdmissionDecision) Kind() Kind { return KindAdmissionDecision }
func (*PeerState) Kind() Kind         { return KindPeerState }
func (*SendMessage) Kind() Kind       { return KindSendMessage }
func (*HostEndMeeting) Kind() Kind    { return KindHostEndMeeting }
func (*StartAnalysis) Kind() Kind     { return KindStartAnalysis }
func (*StopAnalysis) Kind() Kind      { return KindStopAnalysis }
func (*ClientAnswer) Kind() Kind      { return KindClientAnswer }
func (*ClientCandidate) Kind() Kind   { return KindClientCandidate }
func (*Ping) Kind() Kind              { return KindPing }
func (*Offer) Kind() Kind             { return KindOffer }
func (*Answer) Kind() Kind            { return KindAnswer }
func (*Candidate) Kind() Kind         { return KindCandidate }
