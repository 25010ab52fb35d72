package toolcatalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpbroker/internal/domain"
	"mcpbroker/internal/infra/hashutil"
	"mcpbroker/internal/infra/mapping"
)

const (
	opAllTools    = "all_tools"
	opUniqueTools = "unique_tools"
	opToolByName  = "tool_by_name"
)

// Options configures a Catalog.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	// FetchConcurrency bounds parallel metadata fetches. Values below 2 fetch
	// sequentially. Output order is the registry's enumeration order either way.
	FetchConcurrency int
	Now              func() time.Time
}

// Catalog resolves registry entries into ToolInfo values. It holds no state
// between calls; every query builds from a fresh registry snapshot.
type Catalog struct {
	registry    domain.ToolRegistry
	logger      *zap.Logger
	metrics     domain.Metrics
	concurrency int
	now         func() time.Time
}

// New builds a Catalog over the given registry.
func New(registry domain.ToolRegistry, opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Catalog{
		registry:    registry,
		logger:      logger.Named("tool_catalog"),
		metrics:     metrics,
		concurrency: opts.FetchConcurrency,
		now:         now,
	}
}

// AllTools returns every (namespace, name) pair with metadata, in registry
// enumeration order. Pairs without metadata are skipped.
func (c *Catalog) AllTools(ctx context.Context) ([]domain.ToolInfo, error) {
	started := time.Now()
	tools, err := c.build(ctx, opAllTools)
	c.metrics.ObserveCatalogBuild(opAllTools, time.Since(started), len(tools), err)
	return tools, err
}

// UniqueTools returns one tool per distinct name. When a name exists in
// several namespaces the first one enumerated by the registry wins.
func (c *Catalog) UniqueTools(ctx context.Context) ([]domain.ToolInfo, error) {
	started := time.Now()
	tools, err := c.build(ctx, opUniqueTools)
	if err == nil {
		tools = mapping.FirstByKey(tools, func(tool domain.ToolInfo) string { return tool.Name })
	}
	c.metrics.ObserveCatalogBuild(opUniqueTools, time.Since(started), len(tools), err)
	return tools, err
}

// ToolByName resolves a tool. With a namespace only that exact pair is
// considered. Without one, the first enumerated namespace that has metadata
// for the name wins, matching UniqueTools.
func (c *Catalog) ToolByName(ctx context.Context, name, namespace string) (domain.ToolInfo, bool, error) {
	started := time.Now()
	tool, ok, err := c.toolByName(ctx, name, namespace)
	count := 0
	if ok {
		count = 1
	}
	c.metrics.ObserveCatalogBuild(opToolByName, time.Since(started), count, err)
	return tool, ok, err
}

func (c *Catalog) toolByName(ctx context.Context, name, namespace string) (domain.ToolInfo, bool, error) {
	if name == "" {
		return domain.ToolInfo{}, false, nil
	}
	if namespace != "" {
		return c.resolve(ctx, domain.ToolKey{Namespace: namespace, Name: name})
	}

	keys, err := c.registry.ListTools(ctx)
	if err != nil {
		return domain.ToolInfo{}, false, wrapRegistryError(opToolByName, err)
	}
	for _, key := range keys {
		if key.Name != name {
			continue
		}
		tool, ok, err := c.resolve(ctx, key)
		if err != nil {
			return domain.ToolInfo{}, false, err
		}
		if ok {
			return tool, true, nil
		}
	}
	return domain.ToolInfo{}, false, nil
}

// Snapshot builds the full catalog and tags it with a content hash.
func (c *Catalog) Snapshot(ctx context.Context) (domain.CatalogSnapshot, error) {
	tools, err := c.AllTools(ctx)
	if err != nil {
		return domain.CatalogSnapshot{}, err
	}
	return domain.CatalogSnapshot{
		ETag:    hashutil.CatalogETag(c.logger, tools),
		Tools:   tools,
		BuiltAt: c.now(),
	}, nil
}

// ServerForTool returns the namespace that owns a tool. Qualified names of
// the form "namespace.name" are honored when that pair is enumerated;
// otherwise the name is resolved like ToolByName without a namespace.
func (c *Catalog) ServerForTool(ctx context.Context, toolName string) (string, bool, error) {
	if ns, name, found := strings.Cut(toolName, "."); found && ns != "" && name != "" {
		keys, err := c.registry.ListTools(ctx)
		if err != nil {
			return "", false, wrapRegistryError("server_for_tool", err)
		}
		for _, key := range keys {
			if key.Namespace == ns && key.Name == name {
				return ns, true, nil
			}
		}
	}
	tool, ok, err := c.ToolByName(ctx, toolName, "")
	if err != nil || !ok {
		return "", false, err
	}
	return tool.Namespace, true, nil
}

// Namespaces lists enumerated namespaces with their tool counts in
// first-seen order.
func (c *Catalog) Namespaces(ctx context.Context) ([]domain.NamespaceInfo, error) {
	keys, err := c.registry.ListTools(ctx)
	if err != nil {
		return nil, wrapRegistryError("namespaces", err)
	}
	index := make(map[string]int)
	out := make([]domain.NamespaceInfo, 0)
	for _, key := range keys {
		pos, ok := index[key.Namespace]
		if !ok {
			pos = len(out)
			index[key.Namespace] = pos
			out = append(out, domain.NamespaceInfo{Name: key.Namespace})
		}
		out[pos].ToolCount++
	}
	return out, nil
}

func (c *Catalog) build(ctx context.Context, op string) ([]domain.ToolInfo, error) {
	keys, err := c.registry.ListTools(ctx)
	if err != nil {
		return nil, wrapRegistryError(op, err)
	}

	slots, err := c.fetchAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	// A cancelled build never yields a partial catalog.
	if err := ctx.Err(); err != nil {
		return nil, wrapRegistryError(op, err)
	}

	tools := make([]domain.ToolInfo, 0, len(keys))
	for i, slot := range slots {
		if slot == nil {
			c.logger.Debug("tool skipped: no metadata", zap.String("namespace", keys[i].Namespace), zap.String("tool", keys[i].Name))
			continue
		}
		tools = append(tools, *slot)
	}
	return tools, nil
}

func (c *Catalog) fetchAll(ctx context.Context, keys []domain.ToolKey) ([]*domain.ToolInfo, error) {
	slots := make([]*domain.ToolInfo, len(keys))
	if c.concurrency < 2 || len(keys) < 2 {
		for i, key := range keys {
			tool, ok, err := c.resolve(ctx, key)
			if err != nil {
				return nil, err
			}
			if ok {
				slots[i] = &tool
			}
		}
		return slots, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for i, key := range keys {
		group.Go(func() error {
			tool, ok, err := c.resolve(groupCtx, key)
			if err != nil {
				return err
			}
			if ok {
				slots[i] = &tool
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *Catalog) resolve(ctx context.Context, key domain.ToolKey) (domain.ToolInfo, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolInfo{}, false, wrapRegistryError("get_metadata", err)
	}
	md, ok, err := c.registry.GetMetadata(ctx, key.Name, key.Namespace)
	if err != nil {
		return domain.ToolInfo{}, false, wrapRegistryError("get_metadata", err)
	}
	if !ok {
		return domain.ToolInfo{}, false, nil
	}
	return domain.NewToolInfo(key, md), true, nil
}

func wrapRegistryError(op string, err error) error {
	code := domain.CodeUnavailable
	switch {
	case errors.Is(err, context.Canceled):
		code = domain.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = domain.CodeDeadlineExceeded
	}
	return domain.Wrap(code, "catalog."+op, err)
}
