package websocket

import (
	"fmt"

	"github.com/centrifugal/centrifuge"
	"github.com/twistedx/killfeed/internal/adapter/metrics"
)

// Publisher publishes hub broadcasts through the centrifuge node.
type Publisher struct {
	node      *centrifuge.Node
	wsMetrics *metrics.WebSocketMetrics
}

func NewPublisher(node *centrifuge.Node, wsMetrics *metrics.WebSocketMetrics) *Publisher {
	return &Publisher{node: node, wsMetrics: wsMetrics}
}

func (p *Publisher) Publish(channel string, data []byte) error {
	if _, err := p.node.Publish(channel, data); err != nil {
		return fmt.Errorf("publish to channel %s: %w", channel, err)
	}
	if p.wsMetrics != nil {
		p.wsMetrics.Published(channel)
	}
	return nil
}
