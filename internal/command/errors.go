package command

import "errors"

var (
	ErrUnknownCommand = errors.New("command: unknown command")
	ErrBadArgs        = errors.New("command: bad arguments")
	ErrOutOfRange     = errors.New("command: argument out of range")
)
