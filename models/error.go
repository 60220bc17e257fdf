package models

import "errors"

var (
	ErrSuperseded    = errors.New("load superseded by a newer load")
	ErrUnknownSource = errors.New("unknown source")
	ErrNotFound      = errors.New("not found")
)
