package relay

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/tsarna/oscweb/pkg/oscweb/o11y"
	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"github.com/tsarna/oscweb/pkg/oscweb/transform"
	"go.uber.org/zap"
)

// MaxDatagramSize is the largest UDP payload the inbound relay reads.
const MaxDatagramSize = 65535

// Broadcaster fans a payload out to every registered client and reports how
// many accepted it.
type Broadcaster interface {
	Broadcast(payload []byte) int
}

// InboundState is the lifecycle state of an Inbound relay.
type InboundState int32

const (
	InboundIdle InboundState = iota
	InboundListening
	InboundDispatching
	InboundStopped
)

func (s InboundState) String() string {
	switch s {
	case InboundIdle:
		return "idle"
	case InboundListening:
		return "listening"
	case InboundDispatching:
		return "dispatching"
	case InboundStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Inbound relays OSC datagrams from a PacketConn to a Broadcaster.
type Inbound struct {
	conn        net.PacketConn
	broadcaster Broadcaster
	transforms  []transform.DocumentTransformFunc
	logger      *zap.Logger
	metrics     *Metrics
	tracing     o11y.TracingProvider
	state       atomic.Int32
}

// InboundOptions carries the optional collaborators of an Inbound relay.
type InboundOptions struct {
	Logger     *zap.Logger
	Metrics    *Metrics
	Tracing    o11y.TracingProvider
	Transforms []transform.DocumentTransformFunc
}

// NewInbound creates an Inbound relay reading from conn. The relay does not
// own conn; whoever created it closes it.
func NewInbound(conn net.PacketConn, broadcaster Broadcaster, opts InboundOptions) *Inbound {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbound{
		conn:        conn,
		broadcaster: broadcaster,
		transforms:  opts.Transforms,
		logger:      logger,
		metrics:     opts.Metrics,
		tracing:     opts.Tracing,
	}
}

// State returns the relay's current lifecycle state.
func (r *Inbound) State() InboundState {
	return InboundState(r.state.Load())
}

// Run reads and dispatches datagrams until ctx is cancelled or the socket is
// closed, both of which return nil. Malformed datagrams are logged and
// discarded. Run can only be called once.
func (r *Inbound) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(InboundIdle), int32(InboundListening)) {
		return errors.New("inbound relay already started")
	}
	defer r.state.Store(int32(InboundStopped))

	r.logger.Info("OSC inbound relay listening", zap.Stringer("addr", r.conn.LocalAddr()))

	// Unblock ReadFrom when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = r.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	buf := make([]byte, MaxDatagramSize)
	var tempDelay time.Duration

	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				r.logger.Info("OSC inbound relay stopped")
				return nil
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else if tempDelay *= 2; tempDelay > time.Second {
				tempDelay = time.Second
			}
			r.logger.Warn("OSC socket read error, retrying",
				zap.Error(err),
				zap.Duration("retry_in", tempDelay),
			)

			select {
			case <-time.After(tempDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		tempDelay = 0

		r.state.Store(int32(InboundDispatching))
		r.HandleDatagram(ctx, buf[:n], from)
		r.state.Store(int32(InboundListening))
	}
}

// HandleDatagram parses one datagram and broadcasts every message it holds.
// It never fails: bad input is logged and dropped.
func (r *Inbound) HandleDatagram(ctx context.Context, data []byte, from net.Addr) {
	r.metrics.RecordDatagramReceived(ctx)

	msgs, err := osc.ParseDatagram(data)
	if err != nil {
		r.metrics.RecordDatagramMalformed(ctx)
		r.logger.Warn("Discarding malformed OSC datagram",
			zap.Error(err),
			zap.Stringer("from", from),
			zap.Int("size", len(data)),
		)
		return
	}

	for _, msg := range msgs {
		r.dispatch(ctx, msg)
	}
}

func (r *Inbound) dispatch(ctx context.Context, msg osc.Message) {
	ctx, span := o11y.StartSpan(ctx, r.tracing, "osc.broadcast", o11y.Label{Key: "osc.address", Value: msg.Address})
	defer span.End()

	doc := osc.DecodeOSC(msg)

	out := transform.Apply(r.transforms, &doc)
	if out == nil {
		r.metrics.RecordDocumentDropped(ctx, "inbound")
		r.logger.Debug("Inbound OSC message dropped by transform", zap.String("address", msg.Address))
		return
	}

	payload, err := out.Marshal()
	if err != nil {
		o11y.Fail(span, err)
		r.logger.Error("Failed to encode OSC message as JSON",
			zap.String("address", msg.Address),
			zap.Error(err),
		)
		return
	}

	delivered := r.broadcaster.Broadcast(payload)
	r.metrics.RecordBroadcast(ctx, len(payload), delivered)

	r.logger.Debug("Broadcast OSC message",
		zap.String("address", out.Address),
		zap.Int("delivered", delivered),
	)
}
