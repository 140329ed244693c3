package health

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curtisra-gif/cdn-geodns/internal/model"
)

func TestNewTable(t *testing.T) {
	table := NewTable([]string{"10.0.0.2", "10.0.0.1"})

	s, ok := table.State("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, model.HealthState{Available: true, Load: 0}, s)

	_, ok = table.State("10.0.0.9")
	assert.False(t, ok)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, table.Addresses())
	assert.Len(t, table.Snapshot(), 2)
}

func TestMarkUp(t *testing.T) {
	table := NewTable([]string{"10.0.0.1"})

	_, cur, parsed := table.markUp("10.0.0.1", " 42.5\n")
	assert.True(t, parsed)
	assert.Equal(t, model.HealthState{Available: true, Load: 42.5}, cur)

	// malformed and empty bodies keep the last good reading
	for _, body := range []string{"", "busy", "NaN%"} {
		_, cur, parsed = table.markUp("10.0.0.1", body)
		assert.False(t, parsed, body)
		assert.Equal(t, model.HealthState{Available: true, Load: 42.5}, cur, body)
	}
}

func TestMarkDownKeepsLoad(t *testing.T) {
	table := NewTable([]string{"10.0.0.1"})
	table.markUp("10.0.0.1", "77")

	prev, cur := table.markDown("10.0.0.1")
	assert.True(t, prev.Available)
	assert.Equal(t, model.HealthState{Available: false, Load: 77}, cur)

	prev, cur, _ = table.markUp("10.0.0.1", "garbage")
	assert.False(t, prev.Available)
	assert.Equal(t, model.HealthState{Available: true, Load: 77}, cur)
}

func TestSnapshotIsCopy(t *testing.T) {
	table := NewTable([]string{"10.0.0.1"})
	snap := table.Snapshot()
	snap["10.0.0.1"] = model.HealthState{Available: false, Load: 100}

	s, _ := table.State("10.0.0.1")
	assert.True(t, s.Available)
}

func TestTableConcurrentAccess(t *testing.T) {
	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	table := NewTable(addrs)

	var wg sync.WaitGroup
	for _, a := range addrs {
		a := a
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if i%3 == 0 {
					table.markDown(a)
				} else {
					table.markUp(a, "10")
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = table.Snapshot()
				_, _ = table.State(a)
			}
		}()
	}
	wg.Wait()

	for _, a := range addrs {
		s, ok := table.State(a)
		require.True(t, ok)
		assert.Equal(t, 10.0, s.Load)
	}
}
