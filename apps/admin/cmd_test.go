package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/user"
	dummydb "github.com/trezcool/feeledger/storage/database/dummy"
	"github.com/trezcool/feeledger/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	logger = log.New(io.Discard, "", 0)
	validate, _ := testutil.NewValidator()

	// set up DB & repos
	usrRepo = dummydb.NewUserRepository(dummydb.Open())

	// start CLI
	return &commandLine{
		usrSvc: user.NewService(usrRepo, user.Options{Validate: validate}),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

// mockPasswords makes readPasswordFunc return pwds in turn.
func mockPasswords(pwds ...string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		if len(pwds) == 0 {
			return nil, nil
		}
		pwd := pwds[0]
		pwds = pwds[1:]
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_discounts", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_createSuperAdmin(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"createsuperadmin"}, wantErr: errHelp},
		{name: "no email", args: []string{"createsuperadmin", "-name", "Admin"}, wantErr: errHelp},
		{name: "no password", args: []string{"createsuperadmin", "-name", "Admin", "-email", "admin@school.lk"}, wantErr: errHelp},
		{
			name:    "password mismatch",
			args:    []string{"createsuperadmin", "-name", "Admin", "-email", "admin@school.lk"},
			extra:   []string{"s3cr3t-pass", "other-pass"},
			wantErr: errPasswordMismatch,
		},
		{
			name:  "created",
			args:  []string{"createsuperadmin", "-name", "Admin", "-email", "Admin@School.lk"},
			extra: []string{"s3cr3t-pass", "s3cr3t-pass"},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwds, _ := tt.extra.([]string)

		t.Run(tt.name, func(t *testing.T) {
			mockPasswords(pwds...)
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			usr, err := usrRepo.GetUserByEmail(context.Background(), "admin@school.lk")
			require.NoError(t, err)
			assert.True(t, usr.IsSuperAdmin())
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword("s3cr3t-pass"))
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		mockPasswords("s3cr3t-pass", "s3cr3t-pass")
		err := cli.run([]string{"admin", "createsuperadmin", "-name", "Other", "-email", "admin@school.lk"})
		assert.Error(t, err)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "user@school.lk", "old-pass", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@school.lk"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@school.lk"}, extra: "n3w-pass", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", "User@School.lk"}, extra: "n3w-pass"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)

		t.Run(tt.name, func(t *testing.T) {
			mockPasswords(pwd)
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)

			refreshed, err := usrRepo.GetUser(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword("n3w-pass"))
		})
	}
}
