package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

const (
	accessCodeMin         = 10000
	accessCodeMax         = 99999
	maxAccessCodeAttempts = 100
)

// AccessCodeGenerator draws 5 digit access codes that are not escrowed yet.
type AccessCodeGenerator struct {
	taken       func(ctx context.Context, code string) (bool, error)
	draw        func() (int, error)
	maxAttempts int
}

// NewAccessCodeGenerator builds a generator that checks candidates with taken.
func NewAccessCodeGenerator(taken func(ctx context.Context, code string) (bool, error)) *AccessCodeGenerator {
	return &AccessCodeGenerator{taken: taken, draw: randomAccessCode, maxAttempts: maxAccessCodeAttempts}
}

// Generate returns a free code or ErrExhaustedRetries once every attempt collided.
func (g *AccessCodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		n, err := g.draw()
		if err != nil {
			return "", appErrors.Internal(err, "failed to draw access code")
		}
		code := strconv.Itoa(n)
		taken, err := g.taken(ctx, code)
		if err != nil {
			return "", appErrors.Internal(err, "failed to check access code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", appErrors.Wrap(fmt.Errorf("%d attempts collided", g.maxAttempts), appErrors.ErrExhaustedRetries.Code,
		appErrors.ErrExhaustedRetries.Status, appErrors.ErrExhaustedRetries.Message)
}

func randomAccessCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(accessCodeMax-accessCodeMin+1))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + accessCodeMin, nil
}
