// Package scheduler wires a set of ports.MediaProcessor nodes into a
// stream-id DAG and drives them to completion (§4.8): one goroutine per
// processor, bounded per-edge channels for backpressure, and a shared
// cancellation cause for first-error propagation.
package scheduler

import (
	"fmt"
	"strconv"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
	"github.com/shiguredo/hisui-sub000/internal/metrics"
)

// node is one registered processor plus its resolved edges.
type node struct {
	name     string
	proc     ports.MediaProcessor
	spec     ports.ProcessorSpec
	inbound  map[domain.MediaStreamID]<-chan *domain.Sample
	outbound map[domain.MediaStreamID]chan *domain.Sample
}

// Graph is a validated, wired DAG of processors ready to run.
type Graph struct {
	nodes         []*node
	queueCapacity int
}

// Build validates that every stream id is produced by exactly one processor
// and consumed by at most one, rejects cycles, and allocates the bounded
// channel for each edge. queueCapacity is the per-edge buffer size (§5).
func Build(processors map[string]ports.MediaProcessor, queueCapacity int) (*Graph, error) {
	if queueCapacity < 1 {
		queueCapacity = 1
	}

	producedBy := make(map[domain.MediaStreamID]string)
	consumedBy := make(map[domain.MediaStreamID]string)
	specs := make(map[string]ports.ProcessorSpec, len(processors))

	for name, p := range processors {
		spec := p.Spec()
		specs[name] = spec
		for _, out := range spec.OutputStreamIDs {
			if other, ok := producedBy[out]; ok {
				return nil, domain.WrapConfiguration(fmt.Errorf("scheduler: stream %v produced by both %q and %q", out, other, name))
			}
			producedBy[out] = name
		}
	}
	for name, spec := range specs {
		for _, in := range spec.InputStreamIDs {
			if other, ok := consumedBy[in]; ok {
				return nil, domain.WrapConfiguration(fmt.Errorf("scheduler: stream %v consumed by both %q and %q", in, other, name))
			}
			consumedBy[in] = name
			if _, ok := producedBy[in]; !ok {
				return nil, domain.WrapConfiguration(fmt.Errorf("scheduler: stream %v consumed by %q has no producer", in, name))
			}
		}
	}

	channels := make(map[domain.MediaStreamID]chan *domain.Sample, len(producedBy))
	for id := range producedBy {
		channels[id] = make(chan *domain.Sample, queueCapacity)
		metrics.QueueCapacity.WithLabelValues(strconv.Itoa(int(id))).Set(float64(queueCapacity))
	}

	nodes := make([]*node, 0, len(processors))
	for name, p := range processors {
		spec := specs[name]
		n := &node{
			name:     name,
			proc:     p,
			spec:     spec,
			inbound:  make(map[domain.MediaStreamID]<-chan *domain.Sample, len(spec.InputStreamIDs)),
			outbound: make(map[domain.MediaStreamID]chan *domain.Sample, len(spec.OutputStreamIDs)),
		}
		for _, in := range spec.InputStreamIDs {
			n.inbound[in] = channels[in]
		}
		for _, out := range spec.OutputStreamIDs {
			n.outbound[out] = channels[out]
		}
		nodes = append(nodes, n)
	}

	if err := detectCycles(nodes); err != nil {
		return nil, err
	}

	return &Graph{nodes: nodes, queueCapacity: queueCapacity}, nil
}

// detectCycles walks the producer->consumer relation (a node A feeds node B
// when some output of A is an input of B) looking for a cycle.
func detectCycles(nodes []*node) error {
	indexOf := make(map[string]int, len(nodes))
	for i, n := range nodes {
		indexOf[n.name] = i
	}

	edges := make([][]int, len(nodes))
	for i, n := range nodes {
		for out := range n.outbound {
			for j, m := range nodes {
				if j == i {
					continue
				}
				if _, ok := m.inbound[out]; ok {
					edges[i] = append(edges[i], j)
				}
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(nodes))
	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		for _, j := range edges[i] {
			switch color[j] {
			case gray:
				return domain.WrapConfiguration(fmt.Errorf("scheduler: processor graph contains a cycle through %q", nodes[j].name))
			case white:
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		color[i] = black
		return nil
	}
	for i := range nodes {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}
