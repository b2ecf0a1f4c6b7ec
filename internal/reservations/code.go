package reservations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	codePrefix      = "RSV"
	codeDateLayout  = "060102"
	codeSequenceTTL = 48 * time.Hour
)

// CodeGenerator issues human readable reservation codes (RSV-YYMMDD-XXXXXX).
type CodeGenerator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}

// RandomCodes derives the suffix from a random uuid. Uniqueness is enforced by
// the reservations.code index and Create retries on collision.
type RandomCodes struct{}

func (RandomCodes) Next(_ context.Context, now time.Time) (string, error) {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return formatCode(now, suffix), nil
}

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(name string) string
}

// SequentialCodes numbers reservations per UTC day with a shared redis counter.
type SequentialCodes struct {
	store counterStore
}

// NewSequentialCodes builds a redis-backed code generator.
func NewSequentialCodes(store counterStore) (*SequentialCodes, error) {
	if store == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &SequentialCodes{store: store}, nil
}

func (s *SequentialCodes) Next(ctx context.Context, now time.Time) (string, error) {
	day := now.UTC().Format(codeDateLayout)
	n, err := s.store.IncrWithTTL(ctx, s.store.CounterKey("reservation_code:"+day), codeSequenceTTL)
	if err != nil {
		return "", fmt.Errorf("next reservation sequence: %w", err)
	}
	return formatCode(now, fmt.Sprintf("%06d", n)), nil
}

func formatCode(now time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", codePrefix, now.UTC().Format(codeDateLayout), suffix)
}
