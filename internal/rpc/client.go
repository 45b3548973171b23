package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
)

// Client calls a remote fika.v1.Scheduler.
type Client struct {
	conn *grpc.ClientConn
}

// Dial builds a client for addr. No network I/O happens until the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to scheduler at %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GenerateSchedule asks the server to generate the schedule of userID for day.
func (c *Client) GenerateSchedule(ctx context.Context, userID string, day time.Time) (*scheduler.Schedule, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"user_id": userID,
		"date":    day.Format(domain.DateLayout),
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, generateMethod, req, out); err != nil {
		return nil, err
	}
	var sched scheduler.Schedule
	if err := fromStruct(out, &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

// EvaluateSchedule scores entries. prefs may be nil to use the stored
// preferences of userID.
func (c *Client) EvaluateSchedule(ctx context.Context, userID string, entries []domain.ScheduleEntry, prefs *domain.UserPreferences) (float64, error) {
	req, err := toStruct(evaluateRequest{UserID: userID, Entries: entries, Preferences: prefs})
	if err != nil {
		return 0, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, evaluateMethod, req, out); err != nil {
		return 0, err
	}
	return out.GetFields()["reward"].GetNumberValue(), nil
}
