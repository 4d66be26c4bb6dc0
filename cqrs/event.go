package cqrs

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// EventID is unique string representing an event. Should be unique per event type
// across the system. Good idea is to use prefix per aggregate.
type EventID string

// DomainEvent is an immutable fact recorded by an entity. Implementations are
// plain value structs, so two events are equal when all their fields are.
type DomainEvent interface {
	// EventID returns identifier of the event type.
	EventID() EventID

	// AggregateID returns ID of the aggregate root this event belongs to.
	AggregateID() string
}

// Event is envelope around domain event, containing all the needed information
// for delivering something that had happened in the past to other parties.
type Event struct {
	EventID       EventID     `json:"event_id" mapstructure:"event_id"`
	AggregateID   string      `json:"aggregate_id" mapstructure:"aggregate_id"`
	AggregateType string      `json:"aggregate_type" mapstructure:"aggregate_type"`
	CreatedAt     time.Time   `json:"created_at" mapstructure:"created_at"`
	CorrelationID string      `json:"correlation_id" mapstructure:"correlation_id"`
	Data          DomainEvent `json:"data" mapstructure:"data"`
}

// NewEvent returns envelope for provided domain event and populates
// relevant fields from provided command.
func NewEvent(data DomainEvent, cmd Command) *Event {
	return &Event{
		EventID:       data.EventID(),
		AggregateID:   data.AggregateID(),
		AggregateType: cmd.GetAggregateType(),
		CreatedAt:     time.Now().UTC(),
		CorrelationID: cmd.GetCorrelationID(),
		Data:          data,
	}
}

// EventSerializer defines operations needed for event instance marshal and unmarshal operations.
type EventSerializer interface {
	Marshal(*Event) ([]byte, error)
	Unmarshal([]byte) (*Event, error)
	MarshalData(DomainEvent) ([]byte, error)
	UnmarshalData(EventID, []byte) (DomainEvent, error)
}

// DataCtor returns pointer to zero value of a domain event. Serializer decodes
// into it and dereferences the result, so events keep their value semantics.
type DataCtor func() interface{}

type eventJSONSerializer struct {
	ctors map[EventID]DataCtor
}

// NewEventJSONSerializer returns instance of EventSerializer that is using JSON as underlying format.
func NewEventJSONSerializer() *eventJSONSerializer {
	return &eventJSONSerializer{
		ctors: make(map[EventID]DataCtor),
	}
}

func (e *eventJSONSerializer) RegisterDataCtor(ID EventID, ctor DataCtor) {
	e.ctors[ID] = ctor
}

func (e *eventJSONSerializer) Marshal(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

func (e *eventJSONSerializer) Unmarshal(rawData []byte) (*Event, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(rawData, &raw); err != nil {
		return nil, err
	}
	evID, ok := raw["event_id"]
	if !ok {
		return nil, errors.New("raw event does not contain event_id")
	}
	evIDAsStr, ok := evID.(string)
	if !ok {
		return nil, fmt.Errorf("event_id has unexpected type: %T", evID)
	}
	eventID := EventID(evIDAsStr)

	ctor, ok := e.ctors[eventID]
	if !ok {
		return nil, fmt.Errorf("unknown event ID: %v", eventID)
	}
	data := ctor()
	rawPayload := raw["data"]
	delete(raw, "data")

	ev := &Event{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: ToTimeHookFunc(),
		Result:     ev,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	if err := mapstructure.Decode(rawPayload, data); err != nil {
		return nil, fmt.Errorf("decoding data of %v: %w", eventID, err)
	}
	if ev.Data, err = derefData(eventID, data); err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *eventJSONSerializer) MarshalData(data DomainEvent) ([]byte, error) {
	return json.Marshal(data)
}

func (e *eventJSONSerializer) UnmarshalData(eventID EventID, payload []byte) (DomainEvent, error) {
	ctor, ok := e.ctors[eventID]
	if !ok {
		return nil, fmt.Errorf("unknown event ID: %v", eventID)
	}
	data := ctor()
	if err := json.Unmarshal(payload, data); err != nil {
		return nil, err
	}
	return derefData(eventID, data)
}

func derefData(eventID EventID, data interface{}) (DomainEvent, error) {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	ev, ok := v.Interface().(DomainEvent)
	if !ok {
		return nil, fmt.Errorf("ctor for %v does not produce domain event: %T", eventID, data)
	}
	return ev, nil
}

// ToTimeHookFunc decodes RFC3339 strings and unix milliseconds into time.Time.
func ToTimeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Time{}) {
			return data, nil
		}

		switch f.Kind() {
		case reflect.String:
			return time.Parse(time.RFC3339Nano, data.(string))
		case reflect.Float64:
			return time.Unix(0, int64(data.(float64))*int64(time.Millisecond)), nil
		case reflect.Int64:
			return time.Unix(0, data.(int64)*int64(time.Millisecond)), nil
		default:
			return data, nil
		}
	}
}
