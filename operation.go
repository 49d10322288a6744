package trifleachievements

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationType is the persisted tag of a queued operation.
type OperationType string

const (
	OpSetMetrics  OperationType = "setMetrics"
	OpSetUnlocked OperationType = "setUnlockedAchievements"
	OpClear       OperationType = "clear"
)

// Operation is one of SetMetricsOp, SetUnlockedOp or ClearOp.
type Operation interface {
	Type() OperationType
	isOperation()
}

// SetMetricsOp replaces the stored metrics.
type SetMetricsOp struct {
	Metrics Metrics
}

// SetUnlockedOp replaces the stored unlocked achievement ids.
type SetUnlockedOp struct {
	IDs []string
}

// ClearOp wipes all stored achievement data.
type ClearOp struct{}

func (SetMetricsOp) Type() OperationType  { return OpSetMetrics }
func (SetUnlockedOp) Type() OperationType { return OpSetUnlocked }
func (ClearOp) Type() OperationType       { return OpClear }

func (SetMetricsOp) isOperation()  {}
func (SetUnlockedOp) isOperation() {}
func (ClearOp) isOperation()       {}

// QueuedOperation is a write waiting to be replayed against the wrapped store.
type QueuedOperation struct {
	ID        string
	Op        Operation
	Timestamp time.Time
}

func newQueuedOperation(op Operation, now time.Time) QueuedOperation {
	return QueuedOperation{
		ID:        uuid.NewString(),
		Op:        op,
		Timestamp: now,
	}
}

type queuedOperationJSON struct {
	ID        string          `json:"id"`
	Type      OperationType   `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON encodes the operation as {id, type, data, timestamp}, with the
// timestamp in unix milliseconds.
func (q QueuedOperation) MarshalJSON() ([]byte, error) {
	out := queuedOperationJSON{
		ID:        q.ID,
		Timestamp: q.Timestamp.UnixMilli(),
	}

	var data any
	switch op := q.Op.(type) {
	case SetMetricsOp:
		out.Type = OpSetMetrics
		data = encodeMetrics(op.Metrics)
	case SetUnlockedOp:
		out.Type = OpSetUnlocked
		data = cloneIDs(op.IDs)
	case ClearOp:
		out.Type = OpClear
	default:
		return nil, fmt.Errorf("unknown queued operation %T", q.Op)
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		out.Data = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the persisted form written by MarshalJSON.
func (q *QueuedOperation) UnmarshalJSON(raw []byte) error {
	var in queuedOperationJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}

	var op Operation
	switch in.Type {
	case OpSetMetrics:
		metrics, err := decodeMetrics(in.Data)
		if err != nil {
			return fmt.Errorf("decode %s payload: %w", in.Type, err)
		}
		op = SetMetricsOp{Metrics: metrics}
	case OpSetUnlocked:
		ids := []string{}
		if len(in.Data) > 0 && string(in.Data) != "null" {
			if err := json.Unmarshal(in.Data, &ids); err != nil {
				return fmt.Errorf("decode %s payload: %w", in.Type, err)
			}
		}
		op = SetUnlockedOp{IDs: ids}
	case OpClear:
		op = ClearOp{}
	default:
		return fmt.Errorf("unknown queued operation type %q", in.Type)
	}

	*q = QueuedOperation{
		ID:        in.ID,
		Op:        op,
		Timestamp: time.UnixMilli(in.Timestamp),
	}
	return nil
}
