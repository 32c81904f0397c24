package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/infra/identity"
	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

type SeedOptions struct {
	Count     int
	BatchSize int
	// Tokens is how many of the seeded accounts get a development bearer token.
	Tokens   int
	TokenTTL time.Duration
}

// Seed inserts sample accounts and writes "<user id> <token>" lines to out for
// the first opts.Tokens of them.
func Seed(ctx context.Context, cfg config.Config, opts SeedOptions, out io.Writer) error {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	var issuer *identity.Verifier
	if opts.Tokens > 0 {
		if issuer, err = identity.NewVerifier(cfg.Auth); err != nil {
			return err
		}
	}

	conn, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	baseTime := time.Now().UTC()
	accounts := make([]entity.UserAccount, 0, opts.BatchSize)
	flush := func() error {
		if len(accounts) == 0 {
			return nil
		}
		err := conn.Write(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&accounts, opts.BatchSize).Error
		accounts = accounts[:0]
		return err
	}

	issued := 0
	for i := 0; i < opts.Count; i++ {
		claims := identity.Claims{Username: faker.Username(), Email: faker.Email()}
		claims.Subject = "seed_" + uuid.NewString()
		name := claims.DisplayName()
		accounts = append(accounts, entity.UserAccount{
			UserID:                claims.Subject,
			UserName:              &name,
			ImageGenerationTokens: cfg.Tokens.DefaultCount,
			IsUnlimited:           i == 0,
			CreatedAt:             baseTime.Add(time.Duration(i) * time.Microsecond),
		})
		if issued < opts.Tokens {
			token, err := issuer.Issue(claims, opts.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", claims.Subject, token)
			issued++
		}
		if len(accounts) == opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	log.Infof("bootstrap: seeded %d accounts (%d tokens issued, first account unlimited)", opts.Count, issued)
	return nil
}
