package device

import "sync"

// ram tracks device memory use.
type ram struct {
	mutex sync.Mutex
	size  int64
	used  int64
}

func (m *ram) alloc(n int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.used+n > m.size {
		return false
	}
	m.used += n
	return true
}

func (m *ram) release(n int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.used -= n
	if m.used < 0 {
		m.used = 0
	}
}

func (m *ram) reset() {
	m.mutex.Lock()
	m.used = 0
	m.mutex.Unlock()
}

func (m *ram) free() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.size - m.used
}

func (m *ram) inUse() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.used
}
