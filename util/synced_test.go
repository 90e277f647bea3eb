package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeCounter(t *testing.T) {
	t.Run("Basic Operations", func(t *testing.T) {
		sc := NewSafeIntWithValue(10)
		assert.Equal(t, 10, sc.Value())

		assert.Equal(t, 11, sc.Increment())
		assert.Equal(t, 16, sc.Add(5))
		assert.Equal(t, 13, sc.Add(-3))

		sc.Set(100)
		assert.Equal(t, 100, sc.Value())
	})

	t.Run("Concurrency", func(t *testing.T) {
		sc := NewSafeInt()
		var wg sync.WaitGroup
		iterations := 1000

		wg.Add(iterations)
		for i := 0; i < iterations; i++ {
			go func() {
				defer wg.Done()
				sc.Increment()
			}()
		}
		wg.Wait()
		assert.Equal(t, iterations, sc.Value())
	})
}

func TestSafeFlag(t *testing.T) {
	t.Run("Basic Operations", func(t *testing.T) {
		sf := NewSafeBool()
		assert.False(t, sf.Value())

		assert.True(t, sf.Set(true))
		assert.True(t, sf.Value())
	})

	t.Run("CompareAndSwap admits one winner", func(t *testing.T) {
		sf := NewSafeBool()
		var wg sync.WaitGroup
		winners := NewSafeInt()

		wg.Add(50)
		for i := 0; i < 50; i++ {
			go func() {
				defer wg.Done()
				if sf.CompareAndSwap(false, true) {
					winners.Increment()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners.Value())
		assert.True(t, sf.Value())
	})
}
