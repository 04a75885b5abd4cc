package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/shiguredo/hisui-sub000/internal/domain"
	"github.com/shiguredo/hisui-sub000/internal/domain/ports"
	"github.com/shiguredo/hisui-sub000/internal/metrics"
)

// Options configures a Run: the CPU-intensive concurrency cap and the
// I/O-pool throttle, both settable from internal/app.Config.
type Options struct {
	// CPUCoreLimit bounds the total workload Cost of CPU-intensive
	// processors scheduled at once. 0 means runtime.GOMAXPROCS(0).
	CPUCoreLimit int
	// IOOpsPerSecond throttles the I/O-intensive pool so reader/writer
	// goroutines cannot starve disk bandwidth away from decode/encode
	// workers. 0 disables throttling.
	IOOpsPerSecond float64

	Logger *slog.Logger

	// OnProgress, when set, is called after every sample a processor emits,
	// mirroring the reference implementation's ProgressBar processor (§4.9)
	// without requiring it to be wired as its own graph node.
	OnProgress func(domain.ProgressUpdate)
}

// NodeStats reports one processor's completion state.
type NodeStats struct {
	Name            string
	SamplesEmitted  int64
	OutputsRequests int64
}

// RunStats aggregates every node's stats once the graph has finished.
type RunStats struct {
	Nodes []NodeStats
}

// Run drives every node in g to completion: each processor gets its own
// goroutine that alternates ProcessOutput/ProcessInput per §4.8's protocol,
// suspending on channel operations rather than busy-waiting. The first
// processor error cancels every other node via ctx; Run returns that error
// (or ctx's own cancellation cause).
func Run(ctx context.Context, g *Graph, opts Options) (RunStats, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cpuLimit := int64(opts.CPUCoreLimit)
	if cpuLimit <= 0 {
		cpuLimit = int64(runtime.GOMAXPROCS(0))
	}
	cpuSem := semaphore.NewWeighted(cpuLimit)

	var ioLimiter *rate.Limiter
	if opts.IOOpsPerSecond > 0 {
		ioLimiter = rate.NewLimiter(rate.Limit(opts.IOOpsPerSecond), 1)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var failed atomic.Bool
	var maxTimestamp atomic.Int64
	statsByName := make(map[string]*NodeStats, len(g.nodes))
	for _, n := range g.nodes {
		statsByName[n.name] = &NodeStats{Name: n.name}
	}

	progress := func(streamID domain.MediaStreamID, ts time.Duration) {
		if opts.OnProgress == nil {
			return
		}
		for {
			cur := maxTimestamp.Load()
			if int64(ts) <= cur {
				break
			}
			if maxTimestamp.CompareAndSwap(cur, int64(ts)) {
				break
			}
		}
		opts.OnProgress(domain.ProgressUpdate{
			ProcessedStreamIDs: []domain.MediaStreamID{streamID},
			MaxTimestamp:       time.Duration(maxTimestamp.Load()),
		})
	}

	eg, egCtx := errgroup.WithContext(runCtx)
	for _, n := range g.nodes {
		n := n
		eg.Go(func() error {
			err := runNode(egCtx, n, cpuSem, ioLimiter, statsByName[n.name], progress)
			if err != nil && failed.CompareAndSwap(false, true) {
				opts.Logger.Error("scheduler: processor failed", "processor", n.name, "error", err)
				cancel(err)
			}
			return err
		})
	}

	err := eg.Wait()

	stats := RunStats{Nodes: make([]NodeStats, 0, len(g.nodes))}
	for _, n := range g.nodes {
		stats.Nodes = append(stats.Nodes, *statsByName[n.name])
	}
	if err != nil {
		return stats, err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(domain.ProgressUpdate{MaxTimestamp: time.Duration(maxTimestamp.Load()), Done: true})
	}
	return stats, nil
}

func runNode(ctx context.Context, n *node, cpuSem *semaphore.Weighted, ioLimiter *rate.Limiter, stats *NodeStats, progress func(domain.MediaStreamID, time.Duration)) error {
	defer closeOutbound(n)

	weight := int64(n.spec.Workload.Cost)
	if weight < 1 {
		weight = 1
	}

	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		if n.spec.Workload.IOIntensive {
			if ioLimiter != nil {
				if err := ioLimiter.Wait(ctx); err != nil {
					return context.Cause(ctx)
				}
			}
		} else {
			if err := cpuSem.Acquire(ctx, weight); err != nil {
				return context.Cause(ctx)
			}
		}
		callStart := time.Now()
		out, err := n.proc.ProcessOutput()
		metrics.ProcessorDuration.WithLabelValues(n.name).Observe(time.Since(callStart).Seconds())
		if !n.spec.Workload.IOIntensive {
			cpuSem.Release(weight)
		}
		stats.OutputsRequests++
		if err != nil {
			return err
		}

		switch out.Kind {
		case ports.OutputFinished:
			return nil

		case ports.OutputProcessed:
			ch := n.outbound[out.StreamID]
			sample := out.Sample
			select {
			case ch <- &sample:
				stats.SamplesEmitted++
				metrics.SamplesProcessedTotal.WithLabelValues(sampleKind(sample), n.name).Inc()
				metrics.QueueDepth.WithLabelValues(streamIDLabel(out.StreamID)).Set(float64(len(ch)))
				progress(out.StreamID, sample.Timestamp())
			case <-ctx.Done():
				return context.Cause(ctx)
			}

		case ports.OutputPending:
			metrics.ProcessorPendingTotal.WithLabelValues(n.name).Inc()
			if out.AwaitingStreamID != nil {
				if err := feedOne(ctx, n, *out.AwaitingStreamID); err != nil {
					return err
				}
			} else if err := feedAny(ctx, n); err != nil {
				return err
			}
		}
	}
}

// feedOne blocks until streamID has a sample (or EOS) ready, then delivers
// it via ProcessInput.
func feedOne(ctx context.Context, n *node, streamID domain.MediaStreamID) error {
	ch, ok := n.inbound[streamID]
	if !ok {
		return domain.WrapInvariant(fmt.Errorf("scheduler: %q awaited undeclared stream %v", n.name, streamID))
	}
	select {
	case sample, ok := <-ch:
		if !ok {
			return n.proc.ProcessInput(ports.ProcessorInput{StreamID: streamID, Sample: nil})
		}
		return n.proc.ProcessInput(ports.ProcessorInput{StreamID: streamID, Sample: sample})
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// feedAny blocks on whichever declared input stream becomes ready first,
// used when a processor reports Pending with no preferred stream.
func feedAny(ctx context.Context, n *node) error {
	if len(n.inbound) == 0 {
		return domain.WrapInvariant(fmt.Errorf("scheduler: %q is pending with no declared inputs", n.name))
	}

	ids := make([]domain.MediaStreamID, 0, len(n.inbound))
	cases := make([]reflect.SelectCase, 0, len(n.inbound)+1)
	for id, ch := range n.inbound {
		ids = append(ids, id)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	chosen, value, ok := reflect.Select(cases)
	if chosen == len(ids) {
		return context.Cause(ctx)
	}
	streamID := ids[chosen]
	if !ok {
		return n.proc.ProcessInput(ports.ProcessorInput{StreamID: streamID, Sample: nil})
	}
	sample := value.Interface().(*domain.Sample)
	return n.proc.ProcessInput(ports.ProcessorInput{StreamID: streamID, Sample: sample})
}

func closeOutbound(n *node) {
	for _, ch := range n.outbound {
		close(ch)
	}
}

func sampleKind(s domain.Sample) string {
	if s.Audio != nil {
		return "audio"
	}
	if s.Video != nil {
		return "video"
	}
	return "unknown"
}

func streamIDLabel(id domain.MediaStreamID) string {
	return strconv.Itoa(int(id))
}
