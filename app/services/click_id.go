package services

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// ClickIDGenerator issues short unique ids for tracked links
type ClickIDGenerator interface {
	NewClickID() string
}

type snowflakeClickIDGenerator struct {
	node *snowflake.Node
}

// NewClickIDGenerator creates a generator for the given node number (0-1023).
// Every running instance needs its own node number.
func NewClickIDGenerator(node int64) (ClickIDGenerator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", node, err)
	}
	return &snowflakeClickIDGenerator{node: n}, nil
}

// NewClickID returns a base58 snowflake id, 11 characters for current timestamps
func (g *snowflakeClickIDGenerator) NewClickID() string {
	return g.node.Generate().Base58()
}
