package usecase

import (
	"earshot/internal/domain"
	"earshot/internal/ports"
)

// sessionState is owned by SessionController and only touched under its
// mutex. Every lifecycle change goes through one of the transition methods.
type sessionState struct {
	status       domain.SessionState
	reconnecting bool
	message      string

	// active gates outbound frames and the effect of async callbacks.
	active bool
	// reconnectRequested is set only while an automatic reconnect is pending
	// or in flight.
	reconnectRequested bool

	attempt    uint64
	credential string
	config     domain.SessionConfig

	handle    ports.LiveHandle
	resources *activeResources
}

func newSessionState() sessionState {
	return sessionState{status: domain.SessionStateDisconnected}
}

func (s *sessionState) snapshot() domain.Status {
	return domain.Status{
		State:        s.status,
		Reconnecting: s.status == domain.SessionStateConnecting && s.reconnecting,
		Message:      s.message,
	}
}

// beginConnect starts a new attempt and returns its number.
func (s *sessionState) beginConnect(credential string, cfg domain.SessionConfig, reconnect bool) uint64 {
	s.attempt++
	s.active = true
	s.reconnectRequested = false
	s.status = domain.SessionStateConnecting
	s.reconnecting = reconnect
	s.message = ""
	s.credential = credential
	s.config = cfg
	return s.attempt
}

func (s *sessionState) fail(message string) {
	s.active = false
	s.reconnectRequested = false
	s.status = domain.SessionStateError
	s.reconnecting = false
	s.message = message
}

func (s *sessionState) opened() {
	s.status = domain.SessionStateConnected
	s.reconnecting = false
	s.message = ""
}

func (s *sessionState) requestReconnect() {
	s.reconnectRequested = true
	s.status = domain.SessionStateConnecting
	s.reconnecting = true
	s.message = ""
}

func (s *sessionState) closed() {
	s.active = false
	s.status = domain.SessionStateDisconnected
	s.reconnecting = false
	s.message = ""
}

func (s *sessionState) disconnect() {
	s.active = false
	s.reconnectRequested = false
	s.status = domain.SessionStateDisconnected
	s.reconnecting = false
	s.message = ""
}

// current reports whether attempt is still the live attempt.
func (s *sessionState) current(attempt uint64) bool {
	return s.attempt == attempt
}

// detach hands the handle and resources of the current attempt to the
// caller, who becomes responsible for releasing them.
func (s *sessionState) detach() (ports.LiveHandle, *activeResources) {
	handle, resources := s.handle, s.resources
	s.handle = nil
	s.resources = nil
	return handle, resources
}
