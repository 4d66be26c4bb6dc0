package cqrs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// CommandID names a kind of command, prefixed with aggregate type,
// e.g. "basket.item.add".
type CommandID string

// Command asks one aggregate to change.
type Command interface {
	GetCommandID() CommandID

	// Validate runs against the loaded (or freshly created) root, before any
	// domain method. Returned error means nothing was applied.
	Validate(root AggregateRoot) error

	// GetAggregateID and GetAggregateType locate the aggregate.
	GetAggregateID() string
	GetAggregateType() string

	// GetCorrelationID ties the command to events it caused and to feedback
	// messages about its execution.
	GetCorrelationID() string
}

// BaseCommand carries routing fields every command has. Embed it with
// `mapstructure:",squash"` so the fields decode from the top level:
//
//	type Rename struct {
//		cqrs.BaseCommand `mapstructure:",squash"`
//		Name string      `json:"name" mapstructure:"name"`
//	}
type BaseCommand struct {
	CommandID     CommandID `json:"command_id" mapstructure:"command_id"`
	AggregateID   string    `json:"aggregate_id" mapstructure:"aggregate_id"`
	AggregateType string    `json:"aggregate_type" mapstructure:"aggregate_type"`
	CorrelationID string    `json:"correlation_id" mapstructure:"correlation_id"`
}

func (c *BaseCommand) GetCommandID() CommandID        { return c.CommandID }
func (c *BaseCommand) Validate(_ AggregateRoot) error { return nil }
func (c *BaseCommand) GetAggregateID() string         { return c.AggregateID }
func (c *BaseCommand) GetAggregateType() string       { return c.AggregateType }
func (c *BaseCommand) GetCorrelationID() string       { return c.CorrelationID }

// CommandSerializer moves commands between processes.
type CommandSerializer interface {
	Marshal(Command) ([]byte, error)
	Unmarshal([]byte) (Command, error)
}

// CommandCtor returns pointer to an empty command of one kind.
type CommandCtor func() Command

type commandJSONSerializer struct {
	ctors map[CommandID]CommandCtor
}

// NewCommandJSONSerializer returns JSON CommandSerializer. Only registered
// command kinds can be decoded.
func NewCommandJSONSerializer() *commandJSONSerializer {
	return &commandJSONSerializer{ctors: make(map[CommandID]CommandCtor)}
}

func (s *commandJSONSerializer) RegisterCommandCtor(id CommandID, ctor CommandCtor) {
	s.ctors[id] = ctor
}

func (s *commandJSONSerializer) Marshal(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// Unmarshal picks command kind by its "command_id" field. Numbers and strings
// are converted loosely, so hand written payloads ("quantity": "2") decode too.
func (s *commandJSONSerializer) Unmarshal(data []byte) (Command, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding command: %w", err)
	}
	id, _ := fields["command_id"].(string)
	if id == "" {
		return nil, errors.New("command has no command_id")
	}
	ctor, ok := s.ctors[CommandID(id)]
	if !ok {
		return nil, UnknownCommandErr(CommandID(id))
	}

	cmd := ctor()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cmd,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("decoding %v: %w", id, err)
	}
	return cmd, nil
}
