package order

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"time"
)

const referenceAttempts = 5

var errReferenceExhausted = errors.New("could not generate a unique payment reference")

// ReferenceGenerator issues PREFIX-YYYYMMDD-XXXXXX payment references.
type ReferenceGenerator struct {
	prefix string
	rand   io.Reader
}

func NewReferenceGenerator(prefix string) *ReferenceGenerator {
	return &ReferenceGenerator{prefix: prefix, rand: rand.Reader}
}

// Generate dates the reference with at (UTC) and retries on collision;
// exists is checked inside the caller's transaction.
func (g *ReferenceGenerator) Generate(ctx context.Context, at time.Time, exists func(ctx context.Context, ref string) (bool, error)) (string, error) {
	for i := 0; i < referenceAttempts; i++ {
		ref, err := g.candidate(at)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check payment reference: %w", err)
		}
		if !taken {
			return ref, nil
		}
	}
	return "", errReferenceExhausted
}

func (g *ReferenceGenerator) candidate(at time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)[:6]
	return fmt.Sprintf("%s-%s-%s", g.prefix, at.UTC().Format("20060102"), code), nil
}
