package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"loyalty-hub/internal/metrics"
)

const (
	DefaultCodeAttempts = 10
	redemptionCodeSpace = 100_000_000
)

var redemptionCodeMax = big.NewInt(redemptionCodeSpace)

// CodeExistsFunc reports whether a code has ever been issued.
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

// CodeGenerator draws 8-digit redemption codes and rejects ones already
// persisted, giving up with ErrCodeSpaceExhausted after maxAttempts draws.
type CodeGenerator struct {
	maxAttempts int
	draw        func() (string, error)
	logger      *zap.Logger
}

func NewCodeGenerator(maxAttempts int, logger *zap.Logger) *CodeGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultCodeAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CodeGenerator{
		maxAttempts: maxAttempts,
		draw:        randomCode8,
		logger:      logger,
	}
}

func (g *CodeGenerator) Generate(ctx context.Context, exists CodeExistsFunc) (string, error) {
	if exists == nil {
		return "", errors.New("code existence check is nil")
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, err := g.draw()
		if err != nil {
			return "", fmt.Errorf("draw redemption code: %w", err)
		}

		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check redemption code: %w", err)
		}
		if !taken {
			metrics.ObserveCodeGenerationAttempts(attempt)
			return code, nil
		}

		g.logger.Debug("redemption code collision", zap.Int("attempt", attempt))
	}

	metrics.IncCodeSpaceExhausted()
	g.logger.Error("redemption code space exhausted", zap.Int("attempts", g.maxAttempts))
	return "", ErrCodeSpaceExhausted
}

func randomCode8() (string, error) {
	n, err := rand.Int(rand.Reader, redemptionCodeMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

func isRedemptionCode(code string) bool {
	if len(code) != 8 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
