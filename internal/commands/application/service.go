package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	commands "groundstation-safety/internal/commands/domain"
	"groundstation-safety/internal/observability/metrics"
)

const defaultHistory = 256

// Publisher delivers a command to the vehicle link.
type Publisher interface {
	Publish(ctx context.Context, cmd commands.Command) error
}

// IssueRequest is a manual operator command.
type IssueRequest struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

// Service sends commands and keeps a bounded history of recent ones.
type Service struct {
	publisher Publisher
	timeout   time.Duration
	allowed   map[string]struct{}
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	history []commands.Command
	limit   int
}

// Option configures the service.
type Option func(*Service)

// WithTimeout bounds how long a publish may take.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithAllowedCommands restricts manual commands to names.
func WithAllowedCommands(names ...string) Option {
	return func(s *Service) {
		for _, name := range names {
			if name != "" {
				s.allowed[name] = struct{}{}
			}
		}
	}
}

// WithHistory sets how many recent commands are retained.
func WithHistory(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a command service.
func NewService(publisher Publisher, opts ...Option) (*Service, error) {
	if publisher == nil {
		return nil, errors.New("commands: nil publisher")
	}
	s := &Service{
		publisher: publisher,
		timeout:   2 * time.Second,
		allowed:   make(map[string]struct{}),
		logger:    log.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		limit:     defaultHistory,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// SendCommand publishes an engine-issued command.
func (s *Service) SendCommand(ctx context.Context, name string, value uint64) error {
	_, err := s.send(ctx, name, value, commands.OriginEngine)
	return err
}

// IssueCommand publishes a manual operator command.
func (s *Service) IssueCommand(ctx context.Context, req IssueRequest) (commands.Command, error) {
	if req.Name == "" {
		return commands.Command{}, errors.New("commands: name required")
	}
	if _, ok := s.allowed[req.Name]; !ok {
		return commands.Command{}, fmt.Errorf("commands: %s: %w", req.Name, ErrNotAllowed)
	}
	return s.send(ctx, req.Name, req.Value, commands.OriginOperator)
}

// ErrNotAllowed is returned for manual commands outside the allow list.
var ErrNotAllowed = errors.New("commands: command not allowed")

// Recent returns the retained commands, newest first.
func (s *Service) Recent() []commands.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]commands.Command, len(s.history))
	for i, cmd := range s.history {
		out[len(s.history)-1-i] = cmd
	}
	return out
}

func (s *Service) send(ctx context.Context, name string, value uint64, origin string) (commands.Command, error) {
	if name == "" {
		return commands.Command{}, errors.New("commands: name required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := commands.Command{
		ID:        uuid.NewString(),
		Name:      name,
		Value:     value,
		Origin:    origin,
		Status:    commands.StatusCreated,
		CreatedAt: s.now(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.publisher.Publish(sendCtx, cmd)
	switch {
	case err == nil:
		cmd.Status = commands.StatusSent
		cmd.SentAt = s.now()
		metrics.IncCommandSend(name, metrics.ResultSuccess)
	case errors.Is(err, context.DeadlineExceeded):
		cmd.Status = commands.StatusTimeout
		cmd.Error = err.Error()
		metrics.IncCommandSend(name, metrics.ResultError)
	default:
		cmd.Status = commands.StatusFailed
		cmd.Error = err.Error()
		metrics.IncCommandSend(name, metrics.ResultError)
	}
	s.record(cmd)
	if err != nil {
		s.logger.Printf("commands: %s(%d) from %s: %v", name, value, origin, err)
		return cmd, fmt.Errorf("commands: send %s: %w", name, err)
	}
	s.logger.Printf("commands: %s(%d) from %s sent as %s", name, value, origin, cmd.ID)
	return cmd, nil
}

func (s *Service) record(cmd commands.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, cmd)
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}
