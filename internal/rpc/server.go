package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/identity"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/shared"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

// Generator runs one schedule generation.
type Generator interface {
	Generate(ctx context.Context, userID string, day time.Time) (*scheduler.Schedule, error)
}

// Server implements SchedulerServer on top of a Generator.
type Server struct {
	gen     Generator
	users   identity.UserGetter
	timeout time.Duration
	logger  *slog.Logger
}

// NewServer creates a Server. timeout bounds each generation run.
func NewServer(gen Generator, users identity.UserGetter, timeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{gen: gen, users: users, timeout: timeout, logger: logger}
}

// NewGRPCServer returns a grpc.Server with srv registered and request logging.
func NewGRPCServer(srv *Server) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(srv.logInterceptor))
	RegisterSchedulerServer(s, srv)
	return s
}

func (s *Server) logInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	started := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info("gRPC request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"elapsed", time.Since(started))
	return resp, err
}

// GenerateSchedule expects {"user_id": "...", "date": "YYYY-MM-DD"}.
func (s *Server) GenerateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := stringField(req, "user_id")
	if !identity.ValidUserID(userID) {
		return nil, status.Error(codes.InvalidArgument, "invalid user_id")
	}
	day, err := domain.ParseDay(stringField(req, "date"), time.Now())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sched, err := s.gen.Generate(ctx, userID, day)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(sched)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

type evaluateRequest struct {
	UserID      string                  `json:"user_id"`
	Entries     []domain.ScheduleEntry  `json:"entries"`
	Preferences *domain.UserPreferences `json:"preferences"`
}

// EvaluateSchedule expects {"entries": [...]} plus either "preferences" or a
// "user_id" whose stored preferences are used.
func (s *Server) EvaluateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in evaluateRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var prefs domain.UserPreferences
	switch {
	case in.Preferences != nil:
		prefs = *in.Preferences
	case in.UserID != "":
		user, err := s.users.GetUser(ctx, in.UserID)
		if err != nil {
			return nil, toStatus(err)
		}
		if user == nil {
			return nil, status.Error(codes.NotFound, store.ErrUserNotFound.Error())
		}
		prefs = user.Preferences
	default:
		return nil, status.Error(codes.InvalidArgument, "preferences or user_id required")
	}
	if err := prefs.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return structpb.NewStruct(map[string]interface{}{
		"reward":           scheduler.Evaluate(in.Entries, prefs),
		"average_duration": scheduler.AverageDuration(in.Entries),
		"entries":          len(in.Entries),
	})
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, scheduler.ErrRunInProgress):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrUnresolvableWindow):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case shared.IsConflictError(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON encoding.
func fromStruct(s *structpb.Struct, v interface{}) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
