// Package resilience содержит размыкатель цепи и политику повторов для исходящих вызовов.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen возвращается, когда размыкатель не пропускает вызов.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State описывает состояние размыкателя.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String возвращает название состояния.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker реализует размыкатель цепи для одной зависимости.
// После failureThreshold подряд неудачных вызовов переходит в OPEN,
// по истечении openTimeout пропускает ограниченное число пробных вызовов.
type Breaker struct {
	failureThreshold    int
	openTimeout         time.Duration
	halfOpenMaxRequests int

	state               State
	consecutiveFailures int
	halfOpenRequests    int
	openedAt            time.Time

	now      func() time.Time
	onChange func(from, to State)

	mu sync.Mutex
}

// NewBreaker создаёт размыкатель в состоянии CLOSED.
func NewBreaker(failureThreshold int, openTimeout time.Duration, halfOpenMaxRequests int) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 1
	}
	if halfOpenMaxRequests <= 0 {
		halfOpenMaxRequests = 1
	}
	return &Breaker{
		failureThreshold:    failureThreshold,
		openTimeout:         openTimeout,
		halfOpenMaxRequests: halfOpenMaxRequests,
		state:               StateClosed,
		now:                 time.Now,
	}
}

// Allow сообщает, можно ли выполнить вызов. В HALF_OPEN учитывает пробные вызовы.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.openTimeout {
			b.transitionTo(StateHalfOpen)
			b.halfOpenRequests = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenRequests < b.halfOpenMaxRequests {
			b.halfOpenRequests++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess учитывает успешный вызов.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.transitionTo(StateClosed)
	}
}

// RecordFailure учитывает неудачный вызов.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// любой сбой пробного вызова снова размыкает цепь
		b.transitionTo(StateOpen)
	}
}

// Release возвращает пробный вызов HALF_OPEN, исход которого неизвестен:
// вызывающий отменил его раньше, чем зависимость ответила.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.halfOpenRequests > 0 {
		b.halfOpenRequests--
	}
}

// State возвращает текущее состояние.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// must be called with lock held
func (b *Breaker) transitionTo(to State) {
	from := b.state
	b.state = to
	b.halfOpenRequests = 0
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.consecutiveFailures = 0
	}
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}
