package model

import "strings"

type MessageType string

// Peer -> server handshake
const (
	TypeRegisterHost     MessageType = "REGISTER_HOST"
	TypeRequestPairCode  MessageType = "REQUEST_PAIR_CODE"
	TypeExchangePairCode MessageType = "EXCHANGE_PAIR_CODE"
	TypeValidateSession  MessageType = "VALIDATE_SESSION"
)

// Server -> peer
const (
	TypeHostRegistered   MessageType = "HOST_REGISTERED"
	TypePairCode         MessageType = "PAIR_CODE"
	TypePairSuccess      MessageType = "PAIR_SUCCESS"
	TypePairFailed       MessageType = "PAIR_FAILED"
	TypeSessionValid     MessageType = "SESSION_VALID"
	TypeSessionInvalid   MessageType = "SESSION_INVALID"
	TypeRemoteJoined     MessageType = "REMOTE_JOINED"
	TypeHostDisconnected MessageType = "HOST_DISCONNECTED"
)

// RelayedNamespaces are the type prefixes eligible for routing between a
// host and its remotes.
var RelayedNamespaces = []string{"control.", "media.", "script."}

// RemoteIDField is the only member the relay reads or writes on relayed messages.
const RemoteIDField = "remoteId"

func (t MessageType) IsHandshake() bool {
	switch t {
	case TypeRegisterHost, TypeRequestPairCode, TypeExchangePairCode, TypeValidateSession:
		return true
	default:
		return false
	}
}

func (t MessageType) IsRelayed() bool {
	s := string(t)
	for _, ns := range RelayedNamespaces {
		if strings.HasPrefix(s, ns) && len(s) > len(ns) {
			return true
		}
	}
	return false
}

// Envelope is the minimal shape every inbound frame must have.
type Envelope struct {
	Type MessageType `json:"type"`
}

type ExchangePairCodeRequest struct {
	Code     string `json:"code"`
	DeviceID string `json:"deviceId"`
}

type ValidateSessionRequest struct {
	TrustToken string `json:"trustToken"`
	DeviceID   string `json:"deviceId"`
}

type HostRegistered struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type PairCodeIssued struct {
	Type MessageType `json:"type"`
	Code string      `json:"code"`
	TTL  int64       `json:"ttl"`
}

type PairSuccess struct {
	Type       MessageType `json:"type"`
	TrustToken string      `json:"trustToken"`
	SessionID  string      `json:"sessionId"`
}

type PairFailed struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

type SessionValid struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type SessionInvalid struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

type RemoteJoined struct {
	Type     MessageType `json:"type"`
	RemoteID string      `json:"remoteId"`
	DeviceID string      `json:"deviceId"`
}

type HostDisconnected struct {
	Type MessageType `json:"type"`
}
