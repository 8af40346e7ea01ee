package relay

import (
	"context"
	"fmt"
	"net"

	"github.com/tsarna/oscweb/pkg/oscweb/osc"
	"go.uber.org/zap"
)

// Forwarder sends OSC messages to the downstream peer.
type Forwarder interface {
	Forward(ctx context.Context, msg osc.Message) error
}

// Peer is the fixed downstream OSC endpoint. Sends are single fire-and-forget
// datagrams written on a shared PacketConn; concurrent use is safe.
type Peer struct {
	conn    net.PacketConn
	addr    net.Addr
	logger  *zap.Logger
	metrics *Metrics
}

// NewPeer creates a Peer that writes to addr through conn.
func NewPeer(conn net.PacketConn, addr net.Addr, logger *zap.Logger, metrics *Metrics) *Peer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Peer{
		conn:    conn,
		addr:    addr,
		logger:  logger,
		metrics: metrics,
	}
}

// Addr returns the peer address.
func (p *Peer) Addr() net.Addr {
	return p.addr
}

// Forward encodes msg and sends it as one UDP datagram. There is no retry and
// no delivery confirmation.
func (p *Peer) Forward(ctx context.Context, msg osc.Message) error {
	data, err := msg.MarshalBinary()
	if err == nil {
		_, err = p.conn.WriteTo(data, p.addr)
		if err != nil {
			err = fmt.Errorf("failed to send OSC message to %s: %w", p.addr, err)
		}
	}
	p.metrics.RecordOSCSent(ctx, err)

	if err != nil {
		return err
	}

	p.logger.Debug("Sent OSC message",
		zap.String("address", msg.Address),
		zap.Int("args", len(msg.Arguments)),
		zap.Stringer("peer", p.addr),
	)
	return nil
}
