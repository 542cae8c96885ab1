package game

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrAlreadyVoted     = errors.New("vote already recorded for this round")
	ErrVotingClosed     = errors.New("voting is closed for this round")
	ErrNotStarted       = errors.New("game has not started")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrGameFinished     = errors.New("game is finished")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrNotEnoughTracks  = errors.New("not enough tracks to start")
	ErrHostStopped      = errors.New("room host is not running")
	ErrHostedElsewhere  = fmt.Errorf("%w: room is hosted by another server", ErrHostStopped)
)
