package extensions

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/monitoring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline scans builtin and installed roots concurrently and merges them
// in a fixed order: every builtin root in list order, then every installed
// root in list order. Later entries override earlier ones with the same
// identity, so installed extensions shadow builtin ones regardless of how
// long each scan takes.
type Pipeline struct {
	scanner     Scanner
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	concurrency int
}

// NewPipeline creates a pipeline. concurrency bounds the number of roots
// scanned at once per group; zero or less uses GOMAXPROCS.
func NewPipeline(scanner Scanner, logger *zap.Logger, metrics *monitoring.Metrics, concurrency int) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		scanner:     scanner,
		logger:      logger.Named("extensions"),
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// Scan runs one scan task per root and returns the merged extensions. A
// failing root is logged and contributes nothing. The only error is the
// context's, in which case late results are discarded.
func (p *Pipeline) Scan(ctx context.Context, builtinRoots, installedRoots []string, locale string, translations Translations) ([]Extension, error) {
	start := time.Now()

	builtin := p.launch(ctx, "builtin", builtinRoots, true, false, locale, translations)
	installed := p.launch(ctx, "installed", installedRoots, false, true, locale, translations)

	merged := newMergeSet(p.logger)
	for _, group := range []*scanGroup{builtin, installed} {
		results, err := group.wait(ctx)
		if err != nil {
			return nil, err
		}
		for _, exts := range results {
			merged.addAll(exts)
		}
	}

	result := merged.values()
	p.metrics.RecordExtensionMerge(len(result), merged.collisions, time.Since(start))
	p.logger.Debug("extension scan complete",
		zap.Int("extensions", len(result)),
		zap.Int("collisions", merged.collisions),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

type scanGroup struct {
	results [][]Extension
	done    chan struct{}
}

// wait joins the group. Results are discarded once the caller has gone away,
// even if the group finished first.
func (g *scanGroup) wait(ctx context.Context) ([][]Extension, error) {
	select {
	case <-g.done:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.results, nil
}

// launch starts the group's tasks in the background. Each task writes only
// its own slot, so results keep root order.
func (p *Pipeline) launch(ctx context.Context, name string, roots []string, builtin, underDevelopment bool, locale string, translations Translations) *scanGroup {
	g := &scanGroup{
		results: make([][]Extension, len(roots)),
		done:    make(chan struct{}),
	}

	var eg errgroup.Group
	eg.SetLimit(p.concurrency)

	go func() {
		defer close(g.done)
		for i, root := range roots {
			i, root := i, root
			eg.Go(func() error {
				exts, err := p.scanRoot(ctx, root, builtin, underDevelopment, locale, translations)
				p.metrics.RecordExtensionScan(name, err)
				if err != nil {
					p.logger.Error("extension scan failed",
						zap.String("group", name),
						zap.Error(&ScanError{Root: root, Builtin: builtin, Err: err}))
					return nil
				}
				g.results[i] = exts
				return nil
			})
		}
		_ = eg.Wait()
	}()
	return g
}

// scanRoot isolates one task, turning a scanner panic into an error
func (p *Pipeline) scanRoot(ctx context.Context, root string, builtin, underDevelopment bool, locale string, translations Translations) (exts []Extension, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner panic: %v", r)
		}
	}()
	return p.scanner.Scan(ctx, root, builtin, underDevelopment, locale, translations)
}
