package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockset_SerializesPerID(t *testing.T) {
	l := newLockset()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("enc")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.size())
}

func TestLockset_IndependentIDs(t *testing.T) {
	l := newLockset()
	unlockA := l.lock("a")
	unlockB := l.lock("b")
	assert.Equal(t, 2, l.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, l.size())
}
