package service

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
)

// OrderNumbers hands out short, time-ordered public order references.
type OrderNumbers struct {
	node *snowflake.Node
}

// NewOrderNumbers needs a node id unique per running instance (0-1023).
func NewOrderNumbers(node int64) (*OrderNumbers, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, errors.Wrap(err, "snowflake node")
	}
	return &OrderNumbers{node: n}, nil
}

func (o *OrderNumbers) Next() string {
	return "ORD-" + strings.ToUpper(o.node.Generate().Base36())
}
