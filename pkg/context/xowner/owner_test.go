package xowner

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type hold string

func (h hold) HoldKey() any { return string(h) }

func TestEnsureReusesOwner(t *testing.T) {
	ctx, o1 := Ensure(context.Background())
	require.NotNil(t, o1)
	assert.NotEmpty(t, o1.ID())

	ctx2, o2 := Ensure(ctx)
	assert.Same(t, o1, o2)
	assert.Equal(t, ctx, ctx2)
	assert.Same(t, o1, From(ctx2))
}

func TestEnsureNilContext(t *testing.T) {
	//nolint:staticcheck // 测试 nil ctx 降级
	ctx, o := Ensure(nil)
	require.NotNil(t, ctx)
	assert.Same(t, o, From(ctx))
}

func TestWithOverridesOwner(t *testing.T) {
	ctx, parent := Ensure(context.Background())
	child, o := With(ctx, "worker")
	assert.NotSame(t, parent, o)
	assert.Same(t, o, From(child))
	assert.Equal(t, "worker", o.Name())
	assert.Contains(t, o.String(), "worker(")
}

func TestFromMissing(t *testing.T) {
	assert.Nil(t, From(context.Background()))
	//nolint:staticcheck // 测试 nil ctx
	assert.Nil(t, From(nil))
}

func TestHoldStack(t *testing.T) {
	o := New("t")
	a, b, c := hold("a"), hold("b"), hold("c")
	o.Push(a)
	o.Push(b)
	o.Push(c)
	assert.Equal(t, 3, o.Depth())

	// 非栈顶移除
	assert.True(t, o.Remove(b))
	assert.Equal(t, []Hold{a, c}, o.Holds())

	assert.False(t, o.Remove(b))
	assert.True(t, o.Remove(c))
	assert.True(t, o.Remove(a))
	assert.Nil(t, o.Holds())
	assert.Zero(t, o.Depth())
}

func TestRemoveLatestDuplicate(t *testing.T) {
	o := New("")
	a := hold("a")
	o.Push(a)
	o.Push(hold("b"))
	o.Push(a)
	require.True(t, o.Remove(a))
	assert.Equal(t, []Hold{a, hold("b")}, o.Holds())
}

func TestNilOwnerAccessors(t *testing.T) {
	var o *Owner
	assert.Empty(t, o.ID())
	assert.Empty(t, o.Name())
	assert.Equal(t, "<none>", o.String())
	assert.Zero(t, o.Depth())
	assert.Nil(t, o.Holds())
}

func TestConcurrentPushRemove(t *testing.T) {
	o := New("shared")
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := hold(string(rune('a' + i)))
			for range 100 {
				o.Push(h)
				o.Remove(h)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, o.Depth())
}

func TestAppendAttrs(t *testing.T) {
	assert.Empty(t, AppendAttrs(nil, context.Background()))

	ctx, o := With(context.Background(), "svc")
	attrs := AppendAttrs(nil, ctx)
	require.Len(t, attrs, 1)
	assert.Equal(t, slog.String(KeyOwner, o.String()), attrs[0])

	o.Push(hold("x"))
	attrs = AppendAttrs(nil, ctx)
	require.Len(t, attrs, 2)
	assert.Equal(t, int64(1), attrs[1].Value.Int64())
}
