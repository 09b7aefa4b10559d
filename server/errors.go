package server

import "errors"

// ErrPathIsNotAbsolute is returned when a user is declared with a
// relative home path. It is a configuration error and fails server
// construction.
var ErrPathIsNotAbsolute = errors.New("home path must be absolute")

// ErrNoAvailablePort is returned when every port of the configured
// data-port pool has been tried and none could be bound. It is reported
// to the client as "421 no free ports"; the session stays alive.
var ErrNoAvailablePort = errors.New("no available data port")

// errTooManyAcquires and errTooManyReleases signal bounds crossing on
// an AvailableConnections counter. They indicate a server bug, not a
// client-visible condition.
var (
	errTooManyAcquires = errors.New("too many acquires")
	errTooManyReleases = errors.New("too many releases")
)
