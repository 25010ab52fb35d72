package toolcatalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
)

type fakeRegistry struct {
	mu       sync.Mutex
	items    []domain.ToolKey
	meta     map[domain.ToolKey]domain.ToolMetadata
	listErr  error
	metaErr  map[domain.ToolKey]error
	onLookup func(key domain.ToolKey)
	lookups  []domain.ToolKey
}

func (r *fakeRegistry) ListTools(ctx context.Context) ([]domain.ToolKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.ToolKey(nil), r.items...), nil
}

func (r *fakeRegistry) GetMetadata(ctx context.Context, name, namespace string) (domain.ToolMetadata, bool, error) {
	key := domain.ToolKey{Namespace: namespace, Name: name}
	r.mu.Lock()
	r.lookups = append(r.lookups, key)
	hook := r.onLookup
	r.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	if err := r.metaErr[key]; err != nil {
		return domain.ToolMetadata{}, false, err
	}
	md, ok := r.meta[key]
	return md, ok, nil
}

func newFixtureRegistry() *fakeRegistry {
	return &fakeRegistry{
		items: []domain.ToolKey{
			{Namespace: "ns1", Name: "t1"},
			{Namespace: "ns2", Name: "t2"},
			{Namespace: "default", Name: "t1"},
		},
		meta: map[domain.ToolKey]domain.ToolMetadata{
			{Namespace: "ns1", Name: "t1"}: {
				Description:    "d1",
				ArgumentSchema: map[string]any{"properties": map[string]any{"a": map[string]any{"type": "integer"}}, "required": []any{"a"}},
				IsAsync:        true,
				Tags:           []string{"x"},
			},
			{Namespace: "ns2", Name: "t2"}:     {Description: "d2", ArgumentSchema: map[string]any{}},
			{Namespace: "default", Name: "t1"}: {Description: "shadowed"},
		},
	}
}

func keysOf(tools []domain.ToolInfo) []domain.ToolKey {
	out := make([]domain.ToolKey, 0, len(tools))
	for _, tool := range tools {
		out = append(out, tool.Key())
	}
	return out
}

func TestCatalog_AllToolsPreservesEnumerationOrder(t *testing.T) {
	catalog := New(newFixtureRegistry(), Options{Logger: zap.NewNop()})

	tools, err := catalog.AllTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.ToolKey{
		{Namespace: "ns1", Name: "t1"},
		{Namespace: "ns2", Name: "t2"},
		{Namespace: "default", Name: "t1"},
	}, keysOf(tools))

	first := tools[0]
	require.Equal(t, "d1", first.Description)
	require.True(t, first.IsAsync)
	require.Equal(t, []string{"x"}, first.Tags)
	require.Equal(t, []any{"a"}, first.Parameters["required"])
}

func TestCatalog_AllToolsSkipsMissingMetadata(t *testing.T) {
	registry := newFixtureRegistry()
	registry.items = append(registry.items, domain.ToolKey{Namespace: "ns3", Name: "ghost"})

	tools, err := New(registry, Options{}).AllTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 3)
	for _, tool := range tools {
		require.NotEqual(t, "ghost", tool.Name)
	}
}

func TestCatalog_UniqueToolsFirstSeenWins(t *testing.T) {
	catalog := New(newFixtureRegistry(), Options{})

	unique, err := catalog.UniqueTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.ToolKey{
		{Namespace: "ns1", Name: "t1"},
		{Namespace: "ns2", Name: "t2"},
	}, keysOf(unique))
}

func TestCatalog_UniqueToolsSkippedPairDoesNotClaimName(t *testing.T) {
	registry := &fakeRegistry{
		items: []domain.ToolKey{
			{Namespace: "a", Name: "dup"},
			{Namespace: "b", Name: "dup"},
		},
		meta: map[domain.ToolKey]domain.ToolMetadata{
			{Namespace: "b", Name: "dup"}: {Description: "from b"},
		},
	}
	catalog := New(registry, Options{})

	unique, err := catalog.UniqueTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.ToolKey{{Namespace: "b", Name: "dup"}}, keysOf(unique))

	tool, ok, err := catalog.ToolByName(context.Background(), "dup", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", tool.Namespace)
}

func TestCatalog_ToolByNameWithNamespace(t *testing.T) {
	catalog := New(newFixtureRegistry(), Options{})
	ctx := context.Background()

	tool, ok, err := catalog.ToolByName(ctx, "t1", "default")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.ToolKey{Namespace: "default", Name: "t1"}, tool.Key())
	require.Equal(t, "shadowed", tool.Description)

	_, ok, err = catalog.ToolByName(ctx, "t2", "ns1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalog_ToolByNameAgreesWithUniqueTools(t *testing.T) {
	catalog := New(newFixtureRegistry(), Options{})
	ctx := context.Background()

	unique, err := catalog.UniqueTools(ctx)
	require.NoError(t, err)
	for _, want := range unique {
		got, ok, err := catalog.ToolByName(ctx, want.Name, "")
		require.NoError(t, err)
		require.True(t, ok)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("tool mismatch for %s (-want +got):\n%s", want.Name, diff)
		}
	}

	_, ok, err := catalog.ToolByName(ctx, "missing", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalog_QueriesAreIdempotent(t *testing.T) {
	catalog := New(newFixtureRegistry(), Options{})
	ctx := context.Background()

	first, err := catalog.AllTools(ctx)
	require.NoError(t, err)
	second, err := catalog.AllTools(ctx)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(first, second))

	snapA, err := catalog.Snapshot(ctx)
	require.NoError(t, err)
	snapB, err := catalog.Snapshot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, snapA.ETag)
	require.Equal(t, snapA.ETag, snapB.ETag)
}

func TestCatalog_ToolInfoDoesNotAliasRegistryState(t *testing.T) {
	registry := newFixtureRegistry()
	catalog := New(registry, Options{})

	tools, err := catalog.AllTools(context.Background())
	require.NoError(t, err)
	tools[0].Parameters["required"] = []any{"mutated"}

	md := registry.meta[domain.ToolKey{Namespace: "ns1", Name: "t1"}]
	require.Equal(t, []any{"a"}, md.ArgumentSchema["required"])
}

func TestCatalog_ListErrorPropagates(t *testing.T) {
	backendErr := errors.New("backend down")
	registry := newFixtureRegistry()
	registry.listErr = backendErr

	tools, err := New(registry, Options{}).AllTools(context.Background())
	require.Nil(t, tools)
	require.ErrorIs(t, err, backendErr)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnavailable, code)
}

func TestCatalog_MetadataErrorFailsWholeBuild(t *testing.T) {
	backendErr := errors.New("metadata failed")
	registry := newFixtureRegistry()
	registry.metaErr = map[domain.ToolKey]error{{Namespace: "ns2", Name: "t2"}: backendErr}

	for _, concurrency := range []int{1, 4} {
		catalog := New(registry, Options{FetchConcurrency: concurrency})
		tools, err := catalog.AllTools(context.Background())
		require.Nil(t, tools)
		require.ErrorIs(t, err, backendErr)

		unique, err := catalog.UniqueTools(context.Background())
		require.Nil(t, unique)
		require.ErrorIs(t, err, backendErr)
	}
}

func TestCatalog_CancelledBuildReturnsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	registry := newFixtureRegistry()
	registry.onLookup = func(key domain.ToolKey) {
		if key.Name == "t2" {
			cancel()
		}
	}

	tools, err := New(registry, Options{}).AllTools(ctx)
	require.Nil(t, tools)
	require.ErrorIs(t, err, context.Canceled)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeCanceled, code)
}

func TestCatalog_ConcurrentFetchKeepsOrder(t *testing.T) {
	registry := &fakeRegistry{meta: map[domain.ToolKey]domain.ToolMetadata{}}
	for i := 0; i < 32; i++ {
		key := domain.ToolKey{Namespace: "ns", Name: string(rune('a' + i%26)) + string(rune('a'+i/26))}
		registry.items = append(registry.items, key)
		registry.meta[key] = domain.ToolMetadata{Description: key.Name}
	}
	registry.onLookup = func(key domain.ToolKey) {
		if key.Name[0]%2 == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	sequential, err := New(registry, Options{}).AllTools(context.Background())
	require.NoError(t, err)
	concurrent, err := New(registry, Options{FetchConcurrency: 8}).AllTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, keysOf(sequential), keysOf(concurrent))
	require.Equal(t, registry.items, keysOf(concurrent))
}

func TestCatalog_ServerForTool(t *testing.T) {
	catalog := New(newFixtureRegistry(), Options{})
	ctx := context.Background()

	ns, ok, err := catalog.ServerForTool(ctx, "default.t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "default", ns)

	ns, ok, err = catalog.ServerForTool(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ns1", ns)

	_, ok, err = catalog.ServerForTool(ctx, "nope.t9")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalog_Namespaces(t *testing.T) {
	catalog := New(newFixtureRegistry(), Options{})

	namespaces, err := catalog.Namespaces(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.NamespaceInfo{
		{Name: "ns1", ToolCount: 1},
		{Name: "ns2", ToolCount: 1},
		{Name: "default", ToolCount: 1},
	}, namespaces)
}
