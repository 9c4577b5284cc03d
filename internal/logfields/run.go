package logfields

import "go.uber.org/zap"

func Event(val string) zap.Field {
	return zap.String("event", val)
}

// Outcome is the terminal state of an update run.
func Outcome(val string) zap.Field {
	return zap.String("outcome", val)
}
