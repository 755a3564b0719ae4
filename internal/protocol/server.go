package protocol

import (
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

type ConnectionSuccess struct {
	SID domain.UserID `json:"sid"`
}

type RoomJoined struct {
	RoomID  domain.RoomID `json:"room_id"`
	SelfID  domain.UserID `json:"self_id"`
	HostID  domain.UserID `json:"host_id"`
	Members []domain.User `json:"members"`
}

type WaitingForApproval struct {
	RoomID  domain.RoomID `json:"room_id"`
	Message string        `json:"message"`
}

type AdmissionDenied struct {
	RoomID  domain.RoomID `json:"room_id"`
	Message string        `json:"message"`
}

type JoinRequestReceived struct {
	RequesterID   domain.UserID `json:"requester_id"`
	RequesterName string        `json:"requester_name"`
	RoomID        domain.RoomID `json:"room_id"`
}

type JoinRequestProcessed struct {
	RequesterID domain.UserID   `json:"requester_id"`
	RoomID      domain.RoomID   `json:"room_id"`
	Decision    domain.Decision `json:"decision"`
}

type MemberJoined struct {
	RoomID  domain.RoomID `json:"room_id"`
	Member  domain.User   `json:"member"`
	Members []domain.User `json:"members"`
}

type MemberLeft struct {
	RoomID  domain.RoomID `json:"room_id"`
	Member  domain.User   `json:"member"`
	Members []domain.User `json:"members"`
}

type NewMessage struct {
	domain.ChatMessage
}

type MeetingEnded struct {
	RoomID  domain.RoomID `json:"room_id"`
	Message string        `json:"message"`
}

type HostLeft struct {
	RoomID  domain.RoomID `json:"room_id"`
	Message string        `json:"message"`
}

type ServerOffer struct {
	Offer    webrtc.SessionDescription `json:"offer"`
	TargetID domain.UserID             `json:"analysis_target_sid"`
}

type ServerCandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	TargetID  domain.UserID           `json:"analysis_target_sid"`
}

type AnalysisEstablished struct {
	TargetID domain.UserID `json:"target_id"`
}

type AnalysisFailed struct {
	TargetID domain.UserID `json:"target_id"`
	Error    string        `json:"error,omitempty"`
}

type AnalysisConclusion struct {
	AnalyzedSID     domain.UserID     `json:"analyzed_sid"`
	ExpectedHostSID domain.UserID     `json:"expected_host_sid"`
	Conclusion      domain.Conclusion `json:"conclusion"`
}

type AnalysisStoppedHost struct {
	TargetID        domain.UserID `json:"target_id"`
	ExpectedHostSID domain.UserID `json:"expected_host_sid"`
	Error           string        `json:"error,omitempty"`
}

type AnalysisStoppedPeer struct {
	TargetID domain.UserID `json:"target_id"`
}

type ErrorCode string

const (
	CodeNotHost       ErrorCode = "not_host"
	CodeNoSuchRequest ErrorCode = "no_such_request"
	CodeNoSuchRoom    ErrorCode = "no_such_room"
	CodeNoSuchTarget  ErrorCode = "no_such_target"
	CodeAnalysisBusy  ErrorCode = "analysis_busy"
	CodeBadRequest    ErrorCode = "bad_request"
	CodeRateLimited   ErrorCode = "rate_limited"
	CodeInternal      ErrorCode = "internal"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Ref     Kind      `json:"ref,omitempty"`
}

type Pong struct{}

func (*ConnectionSuccess) Kind() Kind    { return KindConnectionSuccess }
func (*RoomJoined) Kind() Kind           { return KindRoomJoined }
func (*WaitingForApproval) Kind() Kind   { return KindWaitingForApproval }
func (*AdmissionDenied) Kind() Kind      { return KindAdmissionDenied }
func (*JoinRequestReceived) Kind() Kind  { return KindJoinRequestReceived }
func (*JoinRequestProcessed) Kind() Kind { return KindJoinRequestProcessed }
func (*MemberJoined) Kind() Kind         { return KindMemberJoined }
func (*MemberLeft) Kind() Kind           { return KindMemberLeft }
func (*NewMessage) Kind() Kind           { return KindNewMessage }
func (*MeetingEnded) Kind() Kind         { return KindMeetingEnded }
func (*HostLeft) Kind() Kind             { return KindHostLeft }
func (*ServerOffer) Kind() Kind          { return KindServerOffer }
func (*ServerCandidate) Kind() Kind      { return KindServerCandidate }
func (*AnalysisEstablished) Kind() Kind  { return KindAnalysisEstablished }
func (*AnalysisFailed) Kind() Kind       { return KindAnalysisFailed }
func (*AnalysisConclusion) Kind() Kind   { return KindAnalysisConclusion }
func (*AnalysisStoppedHost) Kind() Kind  { return KindAnalysisStoppedHost }
func (*AnalysisStoppedPeer) Kind() Kind  { return KindAnalysisStoppedPeer }
func (*Error) Kind() Kind                { return KindError }
func (*Pong) Kind() Kind                 { return KindPong }
