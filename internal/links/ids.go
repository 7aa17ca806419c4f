package links

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// SnowflakeIDs generates time ordered 63-bit ids unique per node.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs returns a generator for node (0..1023). Every replica must
// use a distinct node id.
func NewSnowflakeIDs(node int64) (*SnowflakeIDs, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", node, err)
	}
	return &SnowflakeIDs{node: n}, nil
}

func (g *SnowflakeIDs) NextID() int64 {
	return g.node.Generate().Int64()
}
