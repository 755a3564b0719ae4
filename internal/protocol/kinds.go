// Package protocol defines the signaling messages exchanged over the WebSocket endpoint.
// Every frame is an envelope {"type": <kind>, "payload": {...}} and every kind has one Go type.
package protocol

type Kind string

// Client to server.
const (
	KindJoinRoom          Kind = "join_room"
	KindLeaveRoom         Kind = "leave_room"
	KindAdmissionDecision Kind = "admission_decision"
	KindPeerState         Kind = "peer_state"
	KindSendMessage       Kind = "send_message"
	KindHostEndMeeting    Kind = "host_ended_meeting_request"
	KindStartAnalysis     Kind = "start_analysis_request"
	KindStopAnalysis      Kind = "stop_analysis_request"
	KindClientAnswer      Kind = "client_answer_for_analysis"
	KindClientCandidate   Kind = "client_ice_candidate_for_analysis"
	KindPing              Kind = "ping"
)

// Relayed in both directions.
const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// Server to client.
const (
	KindConnectionSuccess    Kind = "connection_success"
	KindRoomJoined           Kind = "room_joined"
	KindWaitingForApproval   Kind = "waiting_for_approval"
	KindAdmissionDenied      Kind = "admission_denied"
	KindJoinRequestReceived  Kind = "join_request_received"
	KindJoinRequestProcessed Kind = "join_request_processed"
	KindMemberJoined         Kind = "member_joined"
	KindMemberLeft           Kind = "member_left"
	KindNewMessage           Kind = "new_message"
	KindMeetingEnded         Kind = "meeting_ended_by_host"
	KindHostLeft             Kind = "host_left_abruptly"
	KindServerOffer          Kind = "server_offer_for_analysis"
	KindServerCandidate      Kind = "server_ice_candidate_for_analysis"
	KindAnalysisEstablished  Kind = "analysis_connection_established"
	KindAnalysisFailed       Kind = "analysis_connection_failed"
	KindAnalysisConclusion   Kind = "analysis_final_conclusion"
	KindAnalysisStoppedHost  Kind = "analysis_stopped_for_host_ui"
	KindAnalysisStoppedPeer  Kind = "analysis_stopped_notification"
	KindError                Kind = "error"
	KindPong                 Kind = "pong"
)

// Message is implemented by every signaling message.
type Message interface {
	Kind() Kind
}

// Negotiation reports whether k carries WebRTC negotiation that is relayed or applied
// without any retry, so losing it stalls a peer connection.
func (k Kind) Negotiation() bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate, KindPeerState, KindClientAnswer, KindClientCandidate:
		return true
	default:
		return false
	}
}

var registry = map[Kind]func() Message{
	KindJoinRoom:          func() Message { return &JoinRoom{} },
	KindLeaveRoom:         func() Message { return &LeaveRoom{} },
	KindAdmissionDecision: func() Message { return &AdmissionDecision{} },
	KindPeerState:         func() Message { return &PeerState{} },
	KindSendMessage:       func() Message { return &SendMessage{} },
	KindHostEndMeeting:    func() Message { return &HostEndMeeting{} },
	KindStartAnalysis:     func() Message { return &StartAnalysis{} },
	KindStopAnalysis:      func() Message { return &StopAnalysis{} },
	KindClientAnswer:      func() Message { return &ClientAnswer{} },
	KindClientCandidate:   func() Message { return &ClientCandidate{} },
	KindPing:              func() Message { return &Ping{} },

	KindOffer:     func() Message { return &Offer{} },
	KindAnswer:    func() Message { return &Answer{} },
	KindCandidate: func() Message { return &Candidate{} },

	KindConnectionSuccess:    func() Message { return &ConnectionSuccess{} },
	KindRoomJoined:           func() Message { return &RoomJoined{} },
	KindWaitingForApproval:   func() Message { return &WaitingForApproval{} },
	KindAdmissionDenied:      func() Message { return &AdmissionDenied{} },
	KindJoinRequestReceived:  func() Message { return &JoinRequestReceived{} },
	KindJoinRequestProcessed: func() Message { return &JoinRequestProcessed{} },
	KindMemberJoined:         func() Message { return &MemberJoined{} },
	KindMemberLeft:           func() Message { return &MemberLeft{} },
	KindNewMessage:           func() Message { return &NewMessage{} },
	KindMeetingEnded:         func() Message { return &MeetingEnded{} },
	KindHostLeft:             func() Message { return &HostLeft{} },
	KindServerOffer:          func() Message { return &ServerOffer{} },
	KindServerCandidate:      func() Message { return &ServerCandidate{} },
	KindAnalysisEstablished:  func() Message { return &AnalysisEstablished{} },
	KindAnalysisFailed:       func() Message { return &AnalysisFailed{} },
	KindAnalysisConclusion:   func() Message { return &AnalysisConclusion{} },
	KindAnalysisStoppedHost:  func() Message { return &AnalysisStoppedHost{} },
	KindAnalysisStoppedPeer:  func() Message { return &AnalysisStoppedPeer{} },
	KindError:                func() Message { return &Error{} },
	KindPong:                 func() Message { return &Pong{} },
}
