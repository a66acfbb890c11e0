package render

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource hands out document-unique identifiers for imagemap <map> names.
type IDSource interface {
	NextID() string
}

// Counter is an IDSource yielding prefix1, prefix2, ... It is safe for
// concurrent use; one Counter per rendering session keeps names unique within
// the page it produces.
type Counter struct {
	prefix string
	n      atomic.Uint64
}

func NewCounter(prefix string) *Counter {
	return &Counter{prefix: prefix}
}

func (c *Counter) NextID() string {
	return c.prefix + strconv.FormatUint(c.n.Add(1), 10)
}

// UUIDSource is an IDSource backed by random version 4 UUIDs, for hosts that
// merge fragments from several sessions into one page.
type UUIDSource struct {
	Prefix string
}

func (u UUIDSource) NextID() string {
	return u.Prefix + uuid.NewString()
}

// Map ID strategies accepted by NewIDSource.
const (
	StrategyCounter = "counter"
	StrategyUUID    = "uuid"
)

// NewIDSource returns the IDSource for a configured strategy name. An empty
// name selects the counter.
func NewIDSource(strategy string) (IDSource, error) {
	switch strategy {
	case "", StrategyCounter:
		return NewCounter("imagemap-"), nil
	case StrategyUUID:
		return UUIDSource{Prefix: "imagemap-"}, nil
	default:
		return nil, fmt.Errorf("unknown map id strategy %q", strategy)
	}
}
