package user

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
)

var (
	NowFunc = func() time.Time { return time.Now().UTC() } // mockable

	// errors
	ErrNotFound             = core.NewNotFoundError("user not found")
	ErrNameExists           = errors.New("a user with this name already exists")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrAuthenticationFailed = errors.New("invalid email or password")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrCannotGrant          = core.NewForbiddenError("not enough rights to grant this access")
	ErrCannotManage         = core.NewForbiddenError("not enough rights to manage this user")
	ErrDeleteSelf           = core.NewRuleError("users cannot delete themselves")
	ErrInvalidResetLink     = core.NewValidationError(errors.New("invalid or expired password reset link"))
)

type (
	Repository interface {
		// CheckUniqueness returns ErrNameExists or ErrEmailExists when another user (not excludedID) has them.
		CheckUniqueness(ctx context.Context, name, email string, excludedID string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		SetLastLogin(ctx context.Context, id string, at time.Time) error
		DeleteUser(ctx context.Context, id string) error
	}

	Options struct {
		Validate    *validator.Validate
		MailSvc     core.EmailService
		Tokens      *ResetTokens
		FrontendURL string // password reset links point there
		AppName     string
	}

	Service struct {
		repo Repository
		opts Options
	}
)

func NewService(repo Repository, opts Options) *Service {
	return &Service{repo: repo, opts: opts}
}

func (svc *Service) checkUniqueness(ctx context.Context, name, email, excludedID string) error {
	if err := svc.repo.CheckUniqueness(ctx, name, email, excludedID); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrNameExists:
			field = "name"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

func accessFieldError(err error) error {
	return core.NewValidationError(nil, core.FieldError{Field: "access", Error: err.Error()})
}

// Create adds a user on behalf of actor, who may only hand out access they could grant.
func (svc *Service) Create(ctx context.Context, actor User, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.opts.Validate.Struct(nu); err != nil {
		return User{}, err
	}
	access, err := nu.Access.Access()
	if err != nil {
		return User{}, accessFieldError(err)
	}
	if !CanGrant(actor.Access, access) {
		return User{}, ErrCannotGrant
	}
	if err = svc.checkUniqueness(ctx, nu.Name, nu.Email, ""); err != nil {
		return User{}, err
	}

	now := NowFunc()
	usr := User{
		ID:        uuid.New().String(),
		Name:      nu.Name,
		Email:     nu.Email,
		IsActive:  true,
		Access:    access,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err = svc.repo.CreateUser(ctx, usr)
	if _, ok := errors.Cause(err).(*core.ConflictError); ok {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}
	return usr, errors.Wrap(err, "creating user")
}

func (svc *Service) Get(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter, orderings...)
}

// Update changes a user on behalf of actor. Users may edit their own profile; other users can only be
// edited by an actor able to grant their access. Access and activation changes need the same rights.
func (svc *Service) Update(ctx context.Context, actor User, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	uu.Clean(usr)
	if err = svc.opts.Validate.Struct(uu); err != nil {
		return User{}, err
	}

	self := actor.ID == usr.ID
	if !self && !CanGrant(actor.Access, usr.Access) {
		return User{}, ErrCannotManage
	}
	if uu.Access != nil {
		access, err := uu.Access.Access()
		if err != nil {
			return User{}, accessFieldError(err)
		}
		if !CanGrant(actor.Access, access) {
			return User{}, ErrCannotGrant
		}
		usr.Access = access
	}
	if uu.IsActive != nil {
		if self && !*uu.IsActive {
			return User{}, core.NewRuleError("users cannot deactivate themselves")
		}
		usr.IsActive = *uu.IsActive
	}
	if err = svc.checkUniqueness(ctx, uu.Name, uu.Email, usr.ID); err != nil {
		return User{}, err
	}

	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = NowFunc()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// Delete removes a user. Nobody deletes themselves or a user whose access they could not grant.
func (svc *Service) Delete(ctx context.Context, actor User, id string) error {
	if actor.ID == id {
		return ErrDeleteSelf
	}
	usr, err := svc.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !CanGrant(actor.Access, usr.Access) {
		return ErrCannotManage
	}
	return errors.Wrap(svc.repo.DeleteUser(ctx, id), "deleting user")
}

// Authenticate checks the credentials of an active user and stamps their last login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return svc.SetLastLogin(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := NowFunc()
	if err := svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin = null.TimeFrom(now)
	return usr, nil
}

// SetPassword replaces the password of the user with email, bypassing the reset flow (admin CLI).
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	rp := ResetPassword{Token: "-", UID: "-", Password: pwd, PasswordConfirm: pwd}
	if err = svc.opts.Validate.Struct(rp); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = NowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// RequestPasswordReset emails a password reset link to an active user. Unknown emails are ignored
// so that callers cannot probe for accounts.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return err
	}
	if !usr.IsActive {
		return nil
	}

	token, err := svc.opts.Tokens.Make(usr)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	q := make(url.Values)
	q.Set("uid", EncodeUID(usr))
	q.Set("token", token)
	link := svc.opts.FrontendURL + "/password-reset?" + q.Encode()

	svc.opts.MailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: fmt.Sprintf("%s: password reset", svc.opts.AppName),
		TextContent: fmt.Sprintf(
			"Hello %s,\n\nUse the link below to set a new password:\n%s\n\nIgnore this email if you did not ask for it.\n",
			usr.Name, link,
		),
	})
	return nil
}

// ResetPassword sets a new password from a reset link.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := svc.opts.Validate.Struct(rp); err != nil {
		return err
	}
	id, err := decodeUID(rp.UID)
	if err != nil {
		return ErrInvalidResetLink
	}
	usr, err := svc.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidResetLink
		}
		return errors.Wrap(err, "finding user")
	}
	if err = svc.opts.Tokens.Verify(usr, rp.Token); err != nil {
		return ErrInvalidResetLink
	}

	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = NowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
