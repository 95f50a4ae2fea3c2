package session

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

type Generator struct {
	prefix  string
	counter uint64
}

// New returns a generator whose ids are unique to this process instance.
func New() *Generator {
	return &Generator{prefix: uuid.NewString()[:8]}
}

func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-sess-%d", g.prefix, n)
}
