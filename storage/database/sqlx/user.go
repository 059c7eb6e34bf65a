package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/user"
)

var userColumns = "id, name, email, is_active, access_kind, grants, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	IsActive     bool      `db:"is_active"`
	AccessKind   string    `db:"access_kind"`
	Grants       []byte    `db:"grants"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (r userRow) toUser() (user.User, error) {
	spec := user.AccessSpec{Kind: user.AccessKind(r.AccessKind)}
	if len(r.Grants) > 0 {
		if err := json.Unmarshal(r.Grants, &spec.Grants); err != nil {
			return user.User{}, errors.Wrapf(err, "decoding grants of user %s", r.ID)
		}
	}
	access, err := spec.Access()
	if err != nil {
		return user.User{}, errors.Wrapf(err, "decoding access of user %s", r.ID)
	}
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Access:       access,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin,
	}, nil
}

// accessColumns returns the access_kind and grants (JSON) values of a user.
func accessColumns(usr user.User) (string, string, error) {
	spec := user.SpecOf(usr.Access)
	grants, err := json.Marshal(spec.Grants)
	if err != nil {
		return "", "", errors.Wrap(err, "encoding grants")
	}
	return string(spec.Kind), string(grants), nil
}

var userOrderings = map[string]string{
	"name":       "lower(name)",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRepository struct {
	conn
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{conn: newConn(db)}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, name, email string, excludedID string) error {
	var w where
	w.add("(lower(name) = lower(?) OR email = ?)", name, email)
	if isUUID(excludedID) {
		w.add("id <> ?", excludedID)
	}
	var rows []userRow
	if err := repo.selectAll(ctx, &rows, "SELECT "+userColumns+" FROM users"+w.String()+" LIMIT 2", w.args...); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, r := range rows {
		if r.Email == email {
			return user.ErrEmailExists
		}
	}
	if len(rows) > 0 {
		return user.ErrNameExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	kind, grants, err := accessColumns(usr)
	if err != nil {
		return user.User{}, err
	}
	_, err = repo.exec(ctx, `
		INSERT INTO users (id, name, email, is_active, access_kind, grants, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?::jsonb, ?, ?, ?)`,
		usr.ID, usr.Name, usr.Email, usr.IsActive, kind, grants, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, core.TrapUniqueViolation(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getOne(ctx context.Context, cond string, arg interface{}) (user.User, error) {
	var row userRow
	if err := repo.get(ctx, &row, "SELECT "+userColumns+" FROM users WHERE "+cond, arg); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.toUser()
}

func (repo *userRepository) GetUser(ctx context.Context, id string) (user.User, error) {
	if !isUUID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getOne(ctx, "id = ?", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getOne(ctx, "email = ?", email)
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	var w where
	w.search(filter.Search, "name", "email")
	if filter.Kind != "" {
		w.add("access_kind = ?", string(filter.Kind))
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	q := "SELECT " + userColumns + " FROM users" + w.String() +
		" ORDER BY " + core.OrderingClause(orderings, userOrderings, "lower(name) ASC")

	var rows []userRow
	if err := repo.selectAll(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		usr, err := r.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	kind, grants, err := accessColumns(usr)
	if err != nil {
		return user.User{}, err
	}
	n, err := repo.exec(ctx, `
		UPDATE users SET
			name = ?, email = ?, is_active = ?, access_kind = ?, grants = ?::jsonb, password_hash = ?, updated_at = ?
		WHERE id = ?`,
		usr.Name, usr.Email, usr.IsActive, kind, grants, usr.PasswordHash, usr.UpdatedAt, usr.ID,
	)
	if err != nil {
		return user.User{}, core.TrapUniqueViolation(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	n, err := repo.exec(ctx, "UPDATE users SET last_login = ? WHERE id = ?", at, id)
	if err != nil {
		return errors.Wrap(err, "updating last login")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	if !isUUID(id) {
		return user.ErrNotFound
	}
	n, err := repo.exec(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
