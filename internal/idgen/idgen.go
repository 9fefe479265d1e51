// Package idgen hands out correlation IDs for log lines that span a
// cluster discovery run or a sentinel re-resolution. It wraps the same
// generator the teacher's cluster package reaches for when it needs a
// unique ID stream (cluster/cluster.go's idGenerator field, consumed by
// cluster/del.go as cluster.idGenerator.NextID() to mint transaction IDs) —
// here it mints correlation IDs instead of transaction IDs.
package idgen

import (
	"strconv"

	"github.com/openzipkin/zipkin-go/idgenerator"
)

// Generator produces random correlation tags for grouping related log
// lines, safe for concurrent use. IDs are not sequential or ordered; they
// only need to be distinct enough to grep a single run's lines together.
type Generator struct {
	component string
	gen       idgenerator.IDGenerator
}

// New creates a Generator for component, the name that prefixes every ID
// it mints ("cluster", "sentinel") so log lines from different components
// can't be confused even if their numeric tags collide.
func New(component string) *Generator {
	return &Generator{component: component, gen: idgenerator.NewRandomTimestamped()}
}

// Next returns a new correlation tag for this generator's component.
func (g *Generator) Next() string {
	traceID := g.gen.TraceID()
	return g.component + "-" + strconv.FormatUint(traceID.Low, 36)
}
