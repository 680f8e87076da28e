package domain

import "errors"

var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrConnectFailed    = errors.New("connect failed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionUsed   = errors.New("connection already used, create a new one")
	ErrBadDisconnect    = errors.New("connection is open but its endpoint no longer validates")
	ErrBackpressure     = errors.New("backpressure")

	ErrInvalidRoomID     = errors.New("invalid room id")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomNotFound      = errors.New("room not found")
	ErrNotMember         = errors.New("not a member of room")
)
