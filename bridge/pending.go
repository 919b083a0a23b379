package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result codes reported when no verdict arrives.
const (
	CodeDenied      = "auth.denied"
	CodeTimeout     = "auth.timeout"
	CodeInterrupted = "auth.interrupted"
	CodeUnavailable = "auth.unavailable"
)

// ErrAuthInFlight is returned by Register while a request for the same
// identity is still waiting for its verdict.
var ErrAuthInFlight = errors.New("bridge: authentication already in flight")

// AuthResult is the verdict for one authentication request.
type AuthResult struct {
	Accepted bool
	Code     string
}

// AuthRequest is an in-flight authentication request.
type AuthRequest struct {
	ID     uuid.UUID
	done   chan struct{}
	once   sync.Once
	result AuthResult
}

// Done is closed once the request has been resolved.
func (r *AuthRequest) Done() <-chan struct{} {
	return r.done
}

func (r *AuthRequest) complete(res AuthResult) bool {
	fired := false
	r.once.Do(func() {
		r.result = res
		close(r.done)
		fired = true
	})
	return fired
}

// PendingAuthRegistry correlates authentication requests with the verdicts
// the control plane sends back.
type PendingAuthRegistry struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*AuthRequest
}

func NewPendingAuthRegistry() *PendingAuthRegistry {
	return &PendingAuthRegistry{requests: make(map[uuid.UUID]*AuthRequest)}
}

// Register starts tracking a request for id.
func (p *PendingAuthRegistry) Register(id uuid.UUID) (*AuthRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.requests[id]; ok {
		return nil, ErrAuthInFlight
	}
	req := &AuthRequest{ID: id, done: make(chan struct{})}
	p.requests[id] = req
	return req, nil
}

// Resolve completes the request for id. It reports false when there is no
// such request or it was already resolved.
func (p *PendingAuthRegistry) Resolve(id uuid.UUID, accepted bool, code string) bool {
	if !accepted && code == "" {
		code = CodeDenied
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.requests[id]
	if !ok {
		return false
	}
	delete(p.requests, id)
	return req.complete(AuthResult{Accepted: accepted, Code: code})
}

// Await blocks until req is resolved, the timeout elapses or ctx ends.
// An abandoned request is removed so the identity can register again.
func (p *PendingAuthRegistry) Await(ctx context.Context, req *AuthRequest, timeout time.Duration) AuthResult {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-req.done:
		return req.result
	case <-timer.C:
		p.abandon(req, CodeTimeout)
	case <-ctx.Done():
		p.abandon(req, CodeInterrupted)
	}
	<-req.done
	return req.result
}

// abandon removes req and resolves it with code, unless a verdict won the race.
func (p *PendingAuthRegistry) abandon(req *AuthRequest, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.requests[req.ID]; ok && cur == req {
		delete(p.requests, req.ID)
	}
	req.complete(AuthResult{Code: code})
}

// Len reports the number of requests still waiting.
func (p *PendingAuthRegistry) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
