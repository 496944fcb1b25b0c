package agent

import "sync"

// CredentialPool tracks the rotation position within an ordered list of
// interchangeable API credentials. The index is process-wide, advanced
// only on generation failure, and never reset mid-run; Current wraps
// around the list so later calls keep working after a full rotation.
type CredentialPool struct {
	mu    sync.Mutex
	keys  []string
	index int
}

// NewCredentialPool builds a pool over the configured keys.
func NewCredentialPool(keys []string) *CredentialPool {
	return &CredentialPool{keys: keys}
}

// Size returns the number of configured credentials.
func (p *CredentialPool) Size() int {
	return len(p.keys)
}

// Current returns the credential at the rotation position. ok is false
// when no credential is configured at all.
func (p *CredentialPool) Current() (key string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", false
	}
	return p.keys[p.index%len(p.keys)], true
}

// Advance moves the rotation to the next credential.
func (p *CredentialPool) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return
	}
	p.index++
}

// Advances reports how many times the pool has rotated.
func (p *CredentialPool) Advances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}
