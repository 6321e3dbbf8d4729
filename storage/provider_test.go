package storage

import "sync"

// memProvider is a trivial in-memory PersistenceProvider used only by
// tests, so the MVCC layer's fallback-to-provider path can be exercised
// without standing up a bbolt file.
type memProvider struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemProvider() *memProvider {
	return &memProvider{data: make(map[string][]byte)}
}

func (p *memProvider) Get(key []byte) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[string(key)]
	return v, ok
}

func (p *memProvider) Put(_ uint64, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (p *memProvider) Del(_ uint64, key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, string(key))
	return nil
}

func (p *memProvider) Scan(pred func(key, value []byte) bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range p.data {
		if !pred([]byte(k), v) {
			break
		}
	}
	return nil
}

func (p *memProvider) Stop() error { return nil }
