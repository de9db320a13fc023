package message

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediationflow/session"
)

var (
	// ErrEmptyPayload signals an append with no text and no file reference.
	ErrEmptyPayload = errors.New("message: empty payload")
	// ErrInvalidType signals an unknown message type.
	ErrInvalidType = errors.New("message: invalid type")
	// ErrMissingFile signals a media append without a prior intake result.
	ErrMissingFile = errors.New("message: media message requires a stored file reference")
	// ErrInvalidDuration signals a voice append with a negative duration.
	ErrInvalidDuration = errors.New("message: voice duration must be >= 0 seconds")
	// ErrSendBlocked signals an append while the gate predicate is false.
	ErrSendBlocked = errors.New("message: sending is blocked")
)

// GateEvaluator recomputes the send gate; implemented by session.Service.
type GateEvaluator interface {
	Gate(ctx context.Context, sessionID string) (session.Gate, error)
}

// Service validates and appends messages, consulting the gate before every
// write.
type Service struct {
	repo  Repository
	gates GateEvaluator
}

// NewService builds a message service.
func NewService(repo Repository, gates GateEvaluator) *Service {
	return &Service{repo: repo, gates: gates}
}

// Append validates the payload, re-evaluates the gate, and persists the
// message. The gate is checked per call because presence can change between
// polls.
func (s *Service) Append(ctx context.Context, params AppendParams) (Message, error) {
	if err := validate(&params); err != nil {
		return Message{}, err
	}

	gate, err := s.gates.Gate(ctx, params.SessionID)
	if err != nil {
		return Message{}, err
	}
	if !gate.CanSend {
		return Message{}, fmt.Errorf("%w: %s", ErrSendBlocked, gate.BlockedReason())
	}

	return s.repo.Insert(ctx, params)
}

// List returns the ordered message log for the session.
func (s *Service) List(ctx context.Context, sessionID string) ([]Message, error) {
	return s.repo.List(ctx, sessionID)
}

func validate(params *AppendParams) error {
	switch params.Type {
	case TypeText:
		params.Content = strings.TrimSpace(params.Content)
		if params.Content == "" {
			return ErrEmptyPayload
		}
		params.FileURL = ""
		params.FileName = ""
	case TypeImage, TypeDocument:
		if params.FileURL == "" || params.FileName == "" {
			return ErrMissingFile
		}
		params.Content = ""
	case TypeVoice:
		if params.FileURL == "" || params.FileName == "" {
			return ErrMissingFile
		}
		if params.DurationSeconds < 0 {
			return ErrInvalidDuration
		}
		params.Content = ""
	default:
		return ErrInvalidType
	}
	return nil
}
