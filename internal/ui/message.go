package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackshift/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSessionResolved MsgKind = iota
	MsgGuestSignIn
)

type sessionResult struct {
	state models.SessionState
	err   error
}

// sessionResolvedMsg is the constructor for [MsgSessionResolved]
func sessionResolvedMsg(state models.SessionState, err error) Msg {
	return Msg{kind: MsgSessionResolved, data: sessionResult{state, err}}
}

// guestSignInMsg is the constructor for [MsgGuestSignIn]
func guestSignInMsg(ok bool) Msg {
	return Msg{kind: MsgGuestSignIn, data: ok}
}
