package services

import (
	"sync"
	"testing"

	"lumina_studio_go_backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestProfileService_LocksAreReleased(t *testing.T) {
	s := NewProfileService(wallet.DefaultPolicy(), nil, NewMemoryProfileCache(0), nil, 100)
	user := uuid.New()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.lock(user)
			counter++
			unlock()
		}()
	}
	for i := 0; i < 20; i++ {
		unlock := s.lock(uuid.New())
		unlock()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	assert.Empty(t, s.locks)
}
