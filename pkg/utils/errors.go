package utils

import "errors"

var (
	ErrStartingServer      = errors.New("error: starting the udp server")
	ErrWrongOpCode         = errors.New("error: invalid operation code")
	ErrMalformedFrame      = errors.New("error: frame shorter than minimum size")
	ErrUnknownOpCode       = errors.New("error: unrecognized operation code")
	ErrPacketMarshall      = errors.New("error: can not marshall packet")
	ErrTooManyConnections  = errors.New("error: too many connections")
	ErrRequestKindDisabled = errors.New("error: request kind disabled on this server")
)
