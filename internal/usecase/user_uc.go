package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain"
	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	"commerce-access/internal/infra/logging"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase mirrors identities issued by the auth provider into the store.
type UserUseCase interface {
	// EnsureUser creates the account of caller or refreshes its email.
	EnsureUser(ctx context.Context, caller *model.Caller) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type userUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
	now   func() time.Time
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users: users,
		tm:    tm,
		log:   logger,
		now:   time.Now,
	}
}

func (u *userUC) EnsureUser(ctx context.Context, caller *model.Caller) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.EnsureUser")()

	if caller == nil || caller.ID == "" || model.NormalizeEmail(caller.Email) == "" {
		return nil, domain.ErrInvalidArgument
	}
	email := model.NormalizeEmail(caller.Email)

	var user *model.User
	err := inSerializableTx(ctx, u.tm, u.log, "ensure user", func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByID(ctx, tx, caller.ID)
		switch {
		case err == nil:
			if usr.Email != email {
				usr.Email = email
				if err := u.users.Save(ctx, tx, usr); err != nil {
					return err
				}
			}
			user = usr
			return nil
		case errors.Is(err, domain.ErrNotFound):
			nu := &model.User{ID: caller.ID, Email: email, CreatedAt: u.now()}
			if err := u.users.Save(ctx, tx, nu); err != nil {
				return err
			}
			u.log.Info().Str("user_id", nu.ID).Msg("user registered")
			user = nu
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (u *userUC) Get(ctx context.Context, id string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	return u.users.FindByID(ctx, repository.NoTX, id)
}
