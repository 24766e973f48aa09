package model

type Role string

const (
	RoleUnauthenticated Role = "unauthenticated"
	RoleHost            Role = "host"
	RoleRemote          Role = "remote"
)

type HostIdentity struct {
	SessionID string
}

type RemoteIdentity struct {
	SessionID string
	RemoteID  string
	DeviceID  string
}

// ConnectionState is the per-socket identity. Exactly one of Host and Remote
// is set when Role is not RoleUnauthenticated.
type ConnectionState struct {
	Role   Role
	Host   *HostIdentity
	Remote *RemoteIdentity
}

func Unauthenticated() ConnectionState {
	return ConnectionState{Role: RoleUnauthenticated}
}

func AsHost(sessionID string) ConnectionState {
	return ConnectionState{
		Role: RoleHost,
		Host: &HostIdentity{SessionID: sessionID},
	}
}

func AsRemote(sessionID, remoteID, deviceID string) ConnectionState {
	return ConnectionState{
		Role: RoleRemote,
		Remote: &RemoteIdentity{
			SessionID: sessionID,
			RemoteID:  remoteID,
			DeviceID:  deviceID,
		},
	}
}

func (s ConnectionState) Authenticated() bool {
	return s.Role == RoleHost || s.Role == RoleRemote
}

func (s ConnectionState) SessionID() string {
	switch {
	case s.Host != nil:
		return s.Host.SessionID
	case s.Remote != nil:
		return s.Remote.SessionID
	default:
		return ""
	}
}

func (s ConnectionState) RemoteID() string {
	if s.Remote == nil {
		return ""
	}
	return s.Remote.RemoteID
}
