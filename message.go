package tdsim

import "fmt"

// MessageType tags the four wire-level variants a node's application layer
// exchanges. Node.Deliver switches on this tag, with one case per variant
// and a default case for any unrecognized value (the fatal unknown-message
// diagnostic); the tag travels on the wire with the rest of the message
// (see wire.go).
type MessageType uint8

const (
	MessageBasic MessageType = iota
	MessageControlAck
	MessageWaveReq
	MessageWaveResp
)

func (t MessageType) String() string {
	switch t {
	case MessageBasic:
		return "BASIC"
	case MessageControlAck:
		return "CONTROL-ACK"
	case MessageWaveReq:
		return "WAVE-REQ"
	case MessageWaveResp:
		return "WAVE-RESP"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// WaveVote is the vote a node carries in a WAVE-RESP.
type WaveVote uint8

const (
	// VoteNone is only ever seen on a WAVE-REQ, which carries no vote.
	VoteNone WaveVote = iota
	VoteActive
	VoteFinished
)

func (v WaveVote) String() string {
	switch v {
	case VoteActive:
		return "ACTIVE"
	case VoteFinished:
		return "FINISHED"
	default:
		return "NONE"
	}
}

// Message is the envelope every node sends and receives. Src and Dst are
// always populated; Tag and Vote are only meaningful on wave messages
// (zero-valued otherwise), and Payload only on BASIC.
type Message struct {
	Type    MessageType
	Src     NodeID
	Dst     NodeID
	Payload string
	Tag     NodeID
	Vote    WaveVote
}

func (m Message) String() string {
	switch m.Type {
	case MessageWaveReq:
		return fmt.Sprintf("WAVE-REQ(tag=%d %d->%d)", m.Tag, m.Src, m.Dst)
	case MessageWaveResp:
		return fmt.Sprintf("WAVE-RESP(tag=%d %d->%d vote=%s)", m.Tag, m.Src, m.Dst, m.Vote)
	default:
		return fmt.Sprintf("%s(%d->%d)", m.Type, m.Src, m.Dst)
	}
}

func basicMessage(src, dst NodeID, payload string) Message {
	return Message{Type: MessageBasic, Src: src, Dst: dst, Payload: payload}
}

func controlAckMessage(src, dst NodeID) Message {
	return Message{Type: MessageControlAck, Src: src, Dst: dst}
}

func waveReqMessage(src, dst, tag NodeID) Message {
	return Message{Type: MessageWaveReq, Src: src, Dst: dst, Tag: tag}
}

func waveRespMessage(src, dst, tag NodeID, vote WaveVote) Message {
	return Message{Type: MessageWaveResp, Src: src, Dst: dst, Tag: tag, Vote: vote}
}
