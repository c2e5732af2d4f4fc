package health

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Update(t *testing.T) {
	monitor := NewMonitor()
	require.Equal(t, 0, monitor.Count())

	monitor.Update("gateway", NewHealthy("gateway", "serving"))

	status, ok := monitor.Get("gateway")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, 1, monitor.Count())

	// The monitor key wins over whatever name the status carried.
	monitor.Update("channel", NewUnhealthy("something-else", "closed"))
	status, ok = monitor.Get("channel")
	require.True(t, ok)
	assert.Equal(t, "channel", status.Component)
}

func TestMonitor_GetMiss(t *testing.T) {
	monitor := NewMonitor()

	_, ok := monitor.Get("gateway")
	assert.False(t, ok)
}

func TestMonitor_GetAllReturnsCopy(t *testing.T) {
	monitor := NewMonitor()
	monitor.Update("gateway", NewHealthy("gateway", "serving"))
	monitor.Update("behaviour", NewDegraded("behaviour", "slow ticks"))

	all := monitor.GetAll()
	require.Len(t, all, 2)

	// Mutating the returned map must not touch the monitor.
	delete(all, "gateway")
	assert.Equal(t, 2, monitor.Count())
}

func TestMonitor_AggregateHealth(t *testing.T) {
	monitor := NewMonitor()
	monitor.Update("gateway", NewHealthy("gateway", "serving"))
	monitor.Update("channel", NewHealthy("channel", "2 sessions"))
	monitor.Update("behaviour", NewHealthy("behaviour", "ticking"))

	system := monitor.AggregateHealth("frontgate")
	assert.True(t, system.IsHealthy())
	assert.Len(t, system.SubStatuses, 3)

	monitor.Update("channel", NewUnhealthy("channel", "listener closed"))
	system = monitor.AggregateHealth("frontgate")
	assert.True(t, system.IsUnhealthy())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("component-%d", n%3)
			for j := 0; j < 50; j++ {
				if j%2 == 0 {
					monitor.Update(name, NewHealthy(name, "ok"))
				} else {
					monitor.Update(name, NewUnhealthy(name, "failing"))
				}
				monitor.Get(name)
				monitor.AggregateHealth("frontgate")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, monitor.Count())
}
