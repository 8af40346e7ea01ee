package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockClient struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	err      error
}

func newMockClient(id string) *mockClient {
	return &mockClient{id: id}
}

func (c *mockClient) ID() string { return c.id }

func (c *mockClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.received = append(c.received, payload)
	return nil
}

func (c *mockClient) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *mockClient) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.received))
	for i, p := range c.received {
		out[i] = string(p)
	}
	return out
}

func TestRegistryMembership(t *testing.T) {
	t.Run("add has set semantics", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		c := newMockClient("a")

		r.Add(c)
		r.Add(c)

		assert.Equal(t, 1, r.Len())
		assert.Contains(t, r.Snapshot(), c)
	})

	t.Run("remove tolerates absent clients", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		c := newMockClient("a")

		r.Remove(c)
		r.Add(c)
		r.Remove(c)
		r.Remove(c)

		assert.Equal(t, 0, r.Len())
		assert.NotContains(t, r.Snapshot(), c)
	})

	t.Run("client can be re-added after removal", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		c := newMockClient("a")

		r.Add(c)
		r.Remove(c)
		r.Add(c)

		assert.Contains(t, r.Snapshot(), c)
		assert.Equal(t, 1, r.Broadcast([]byte("x")))
		assert.Equal(t, []string{"x"}, c.messages())
	})

	t.Run("observer sees only real membership changes", func(t *testing.T) {
		var counts []int
		r := New(nil).WithObserver(func(count int) {
			counts = append(counts, count)
		})
		a, b := newMockClient("a"), newMockClient("b")

		r.Add(a)
		r.Add(a)
		r.Add(b)
		r.Remove(a)
		r.Remove(a)
		r.Remove(b)

		assert.Equal(t, []int{1, 2, 1, 0}, counts)
	})
}

func TestRegistryBroadcast(t *testing.T) {
	t.Run("no clients is a no-op", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		assert.Equal(t, 0, r.Broadcast([]byte("x")))
	})

	t.Run("every client receives identical payload", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		clients := make([]*mockClient, 5)
		for i := range clients {
			clients[i] = newMockClient(fmt.Sprintf("c%d", i))
			r.Add(clients[i])
		}

		payload := []byte(`{"address":"/synth/freq","v":[440.0]}`)
		assert.Equal(t, 5, r.Broadcast(payload))

		for _, c := range clients {
			assert.Equal(t, []string{string(payload)}, c.messages())
		}
	})

	t.Run("closed client is skipped and deregistered", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		a, b, c := newMockClient("a"), newMockClient("b"), newMockClient("c")
		r.Add(a)
		r.Add(b)
		r.Add(c)
		b.setError(ErrClientClosed)

		assert.Equal(t, 2, r.Broadcast([]byte("x")))

		assert.Equal(t, []string{"x"}, a.messages())
		assert.Empty(t, b.messages())
		assert.Equal(t, []string{"x"}, c.messages())
		assert.NotContains(t, r.Snapshot(), b)
		assert.Equal(t, 2, r.Len())
	})

	t.Run("full queue skips the client but keeps it registered", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		a, b := newMockClient("a"), newMockClient("b")
		r.Add(a)
		r.Add(b)
		a.setError(ErrQueueFull)

		assert.Equal(t, 1, r.Broadcast([]byte("x")))
		assert.Contains(t, r.Snapshot(), a)

		a.setError(nil)
		assert.Equal(t, 2, r.Broadcast([]byte("y")))
		assert.Equal(t, []string{"y"}, a.messages())
		assert.Equal(t, []string{"x", "y"}, b.messages())
	})

	t.Run("removed client receives nothing", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		a, b := newMockClient("a"), newMockClient("b")
		r.Add(a)
		r.Add(b)
		r.Remove(a)

		r.Broadcast([]byte("x"))
		assert.Empty(t, a.messages())
		assert.Equal(t, []string{"x"}, b.messages())
	})
}

// selfRemovingClient deregisters itself from inside Send, as a client whose
// transport fails mid-broadcast would.
type selfRemovingClient struct {
	r     *Registry
	sends atomic.Int32
}

func (c *selfRemovingClient) ID() string { return "self-removing" }

func (c *selfRemovingClient) Send(payload []byte) error {
	c.sends.Add(1)
	c.r.Remove(c)
	return nil
}

func TestRegistryBroadcastAllowsMutationDuringSend(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	self := &selfRemovingClient{r: r}
	other := newMockClient("other")
	r.Add(self)
	r.Add(other)

	assert.Equal(t, 2, r.Broadcast([]byte("x")))
	assert.Equal(t, int32(1), self.sends.Load())
	assert.NotContains(t, r.Snapshot(), self)
	assert.Equal(t, []string{"x"}, other.messages())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	stable := newMockClient("stable")
	r.Add(stable)

	const workers = 8
	const iterations = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			c := newMockClient(fmt.Sprintf("w%d", w))
			for i := 0; i < iterations; i++ {
				r.Add(c)
				r.Broadcast([]byte("tick"))
				r.Remove(c)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 1, r.Len())
	assert.Len(t, stable.messages(), workers*iterations)
}
