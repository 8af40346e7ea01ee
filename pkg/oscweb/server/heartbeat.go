package server

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"go.uber.org/zap"
)

// Heartbeat is a message emitted on a cron schedule, both to the OSC peer
// and to every connected client.
type Heartbeat struct {
	Schedule string
	Message  osc.Message
}

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether spec is a schedule the heartbeat runner
// accepts: five or six cron fields, a descriptor such as "@every 5s", with an
// optional CRON_TZ= prefix.
func ValidateSchedule(spec string) error {
	_, err := scheduleParser.Parse(spec)
	return err
}

type heartbeatJob struct {
	server  *Server
	message osc.Message
}

func (j *heartbeatJob) Run() {
	s := j.server
	ctx := context.Background()

	if peer := s.peer.Load(); peer != nil {
		if err := peer.Forward(ctx, j.message); err != nil {
			s.logger.Warn("Failed to send heartbeat", zap.String("address", j.message.Address), zap.Error(err))
		}
	}

	payload, err := osc.DecodeOSC(j.message).Marshal()
	if err != nil {
		s.logger.Error("Failed to encode heartbeat", zap.Error(err))
		return
	}
	delivered := s.registry.Broadcast(payload)

	s.logger.Debug("Heartbeat sent",
		zap.String("address", j.message.Address),
		zap.Int("delivered", delivered),
	)
}

func (s *Server) newHeartbeatCron() (*cron.Cron, error) {
	if len(s.config.heartbeats) == 0 {
		return nil, nil
	}

	c := cron.New(cron.WithParser(scheduleParser), cron.WithLogger(newCronLogger(s.logger)))
	for _, hb := range s.config.heartbeats {
		if _, err := c.AddJob(hb.Schedule, &heartbeatJob{server: s, message: hb.Message}); err != nil {
			return nil, fmt.Errorf("invalid heartbeat schedule %q: %w", hb.Schedule, err)
		}
	}
	return c, nil
}

// cronLogger adapts a zap.Logger to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func newCronLogger(logger *zap.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (z *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, keyValueFields(keysAndValues)...)
}

func (z *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.logger.Error(msg, append(keyValueFields(keysAndValues), zap.Error(err))...)
}

func keyValueFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}
