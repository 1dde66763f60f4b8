package order

import (
	"context"
	"crypto/rand"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/apperr"
)

const (
	// TicketAlphabet omits characters that are easy to misread (0/O, 1/I).
	// Its length is a power of two so byte masking stays uniform.
	TicketAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	TicketLength   = 6
	TicketAttempts = 8
)

// TicketGenerator produces a candidate ticket.
type TicketGenerator func() (string, error)

// TicketExistsFunc reports whether a ticket is already taken.
type TicketExistsFunc func(ctx context.Context, ticket string) (bool, error)

// RandomTicket returns a random ticket drawn from TicketAlphabet using
// crypto/rand.
func RandomTicket() (string, error) {
	var buf [TicketLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", errors.Wrap(err, "read random")
	}
	for i, b := range buf {
		buf[i] = TicketAlphabet[int(b)&(len(TicketAlphabet)-1)]
	}
	return string(buf[:]), nil
}

// AllocateTicket draws candidates from gen until exists reports a free one,
// giving up after attempts tries with TICKET_GENERATION_FAILED.
func AllocateTicket(ctx context.Context, gen TicketGenerator, exists TicketExistsFunc, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = TicketAttempts
	}
	for range attempts {
		t, err := gen()
		if err != nil {
			return "", errors.Wrap(err, "generate ticket")
		}
		taken, err := exists(ctx, t)
		if err != nil {
			return "", errors.Wrap(err, "check ticket")
		}
		if !taken {
			return t, nil
		}
	}
	return "", apperr.Newf(apperr.KindTicketGenerationFailed,
		"could not allocate a unique ticket after %d attempts", attempts)
}
