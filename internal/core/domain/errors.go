package domain

import "errors"

var (
	ErrNotFound         = errors.New("domain: not found")
	ErrConflict         = errors.New("domain: conflict")
	ErrInvalidArgument  = errors.New("domain: invalid argument")
	ErrDuplicateISRC    = errors.New("domain: duplicate ISRC")
	ErrInsufficientData = errors.New("domain: insufficient listening data")
	ErrNotMutual        = errors.New("domain: match is not mutual")
	ErrNotParticipant   = errors.New("domain: user is not part of this match")
)
