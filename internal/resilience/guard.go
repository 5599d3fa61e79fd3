package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/metrics"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

// Policy задаёт параметры повторов и размыкателя для одной зависимости.
type Policy struct {
	Name                string
	MaxRetries          uint64
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	JitterPercent       uint64
	FailureThreshold    int
	OpenTimeout         time.Duration
	HalfOpenMaxRequests int
}

// DefaultPolicy возвращает политику по умолчанию для зависимости name.
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:                name,
		MaxRetries:          3,
		BaseDelay:           100 * time.Millisecond,
		MaxDelay:            2 * time.Second,
		JitterPercent:       10,
		FailureThreshold:    5,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

func (p Policy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как окончательный ответ зависимости:
// такой вызов не повторяется и не считается сбоем для размыкателя.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка как окончательная.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Guard применяет политику повторов и размыкатель к вызовам одной зависимости.
type Guard struct {
	policy  Policy
	breaker *Breaker
	logger  *zap.Logger
}

// NewGuard создаёт Guard с собственным размыкателем.
func NewGuard(policy Policy, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := NewBreaker(policy.FailureThreshold, policy.OpenTimeout, policy.HalfOpenMaxRequests)
	g := &Guard{
		policy:  policy,
		breaker: b,
		logger:  logger.With(zap.String("dependency", policy.Name)),
	}
	b.onChange = func(from, to State) {
		metrics.SetBreakerState(policy.Name, int(to))
		g.logger.Warn("circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	metrics.SetBreakerState(policy.Name, int(StateClosed))
	return g
}

// Name возвращает имя зависимости.
func (g *Guard) Name() string { return g.policy.Name }

// State возвращает состояние размыкателя зависимости.
func (g *Guard) State() State { return g.breaker.State() }

// Call выполняет fn с повторами и размыкателем.
//
// Успех возвращает результат fn. Окончательная ошибка (Permanent) возвращается
// без обёртки вместе с нулевым значением. Если размыкатель открыт или попытки
// исчерпаны, возвращается fallback и ошибка, оборачивающая model.ErrUpstreamUnavailable.
// Размыкатель узнаёт об исходе только после всех повторов.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error), fallback func(err error) T) (T, error) {
	var zero T

	if !g.breaker.Allow() {
		metrics.IncFallback(g.policy.Name, op, "circuit_open")
		g.logger.Warn("call rejected by open circuit", zap.String("op", op))
		return fallback(ErrCircuitOpen), fmt.Errorf("%w: %s %s: %w", model.ErrUpstreamUnavailable, g.policy.Name, op, ErrCircuitOpen)
	}

	var result T
	attempts := 0
	err := retry.Do(ctx, g.policy.backoff(), func(ctx context.Context) error {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			result = v
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		g.logger.Debug("attempt failed", zap.String("op", op), zap.Int("attempt", attempts), zap.Error(err))
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		g.breaker.RecordSuccess()
		return result, nil
	case IsPermanent(err):
		// зависимость ответила, значит она жива
		g.breaker.RecordSuccess()
		var p *permanentError
		errors.As(err, &p)
		return zero, p.err
	case ctx.Err() != nil:
		// вызов отменён вызывающим, о здоровье зависимости ничего не известно
		g.breaker.Release()
		metrics.IncFallback(g.policy.Name, op, "context")
		return fallback(err), fmt.Errorf("%w: %s %s: %w", model.ErrUpstreamUnavailable, g.policy.Name, op, err)
	default:
		g.breaker.RecordFailure()
		metrics.IncFallback(g.policy.Name, op, "retries_exhausted")
		g.logger.Warn("call failed after retries",
			zap.String("op", op),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return fallback(err), fmt.Errorf("%w: %s %s: %w", model.ErrUpstreamUnavailable, g.policy.Name, op, err)
	}
}

// Execute работает как Call для операций без результата. fallback вызывается для побочных действий,
// например для записи в лог о необходимости ручной сверки.
func (g *Guard) Execute(ctx context.Context, op string, fn func(ctx context.Context) error, fallback func(err error)) error {
	_, err := Call(ctx, g, op,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		},
		func(err error) struct{} {
			if fallback != nil {
				fallback(err)
			}
			return struct{}{}
		},
	)
	return err
}
