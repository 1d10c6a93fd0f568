package bloom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizer_CommonCases(t *testing.T) {
	s := NewSizer()

	m, k := s.Size(1, 0.01)
	small, _ := s.Size(64, 0.01)
	assert.Equal(t, small, m, "tiny lists are sized as 64 entries")
	assert.Equal(t, uint8(7), k)

	m, k = s.Size(1_000_000, 0.01)
	assert.InDelta(t, 9_585_059, float64(m), 100_000)
	assert.Equal(t, uint8(7), k)

	_, k = s.Size(10_000, 0.5)
	assert.LessOrEqual(t, k, uint8(2))
}

func TestSizer_ClampingAndDefaults(t *testing.T) {
	s := NewSizer()
	m, k := s.Size(0, 0)
	assert.NotZero(t, m)
	assert.NotZero(t, k)

	m2, k2 := s.Size(100, 1.0)
	m3, k3 := s.Size(100, 0.01)
	assert.Equal(t, m3, m2, "p>=1 should fall back to 1%")
	assert.Equal(t, k3, k2)
}

func TestFactory_New(t *testing.T) {
	bf := NewFactory().New(128, 0.01)
	require.NotNil(t, bf)

	key := []byte("doubleclick.net")
	assert.False(t, bf.MightContain(key))
	bf.Add(key)
	assert.True(t, bf.MightContain(key))
}

func TestFactory_DefaultsStillUsable(t *testing.T) {
	bf := NewFactory().New(0, 0)
	bf.Add([]byte("default-case.test"))
	assert.True(t, bf.MightContain([]byte("default-case.test")))
}

func TestFilter_NoFalseNegatives(t *testing.T) {
	bf := NewFactory().New(2000, 0.01)
	for i := 0; i < 2000; i++ {
		bf.Add([]byte(fmt.Sprintf("t%04d.tracker.test", i)))
	}
	for i := 0; i < 2000; i++ {
		require.True(t, bf.MightContain([]byte(fmt.Sprintf("t%04d.tracker.test", i))))
	}
}

func TestFilter_ConcurrentReadsDuringWrites(t *testing.T) {
	f := NewFactory().New(256, 0.01)
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10_000; i++ {
			f.Add([]byte{byte(i % 3)})
		}
		close(done)
	}()

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = f.MightContain([]byte("lookup"))
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkBloom_Negative(b *testing.B) {
	bf := NewFactory().New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		bf.Add([]byte(fmt.Sprintf("d%03d.present.test", i)))
	}
	absent := make([][]byte, 1000)
	for i := range absent {
		absent[i] = []byte(fmt.Sprintf("d%03d.absent.test", i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bf.MightContain(absent[i%len(absent)])
	}
}
