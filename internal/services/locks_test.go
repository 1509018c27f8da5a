package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexReleasesEntries(t *testing.T) {
	locks := newKeyedMutex()
	unlock := locks.Lock(1)
	assert.Equal(t, 1, locks.size())
	unlock()
	assert.Equal(t, 0, locks.size())
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(7)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}
