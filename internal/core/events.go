package core

type Event struct {
	RunID     string      `json:"run_id"`
	Level     string      `json:"level"`
	EventType string      `json:"event_type"`
	Component string      `json:"component,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

type EventLogger interface {
	Emit(event Event) error
}

// Emit sends event to logger when one is configured.
func Emit(logger EventLogger, event Event) error {
	if logger == nil {
		return nil
	}
	if event.Level == "" {
		event.Level = "info"
	}
	return logger.Emit(event)
}
