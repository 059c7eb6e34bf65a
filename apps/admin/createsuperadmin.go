package main

import (
	"context"

	"github.com/trezcool/feeledger/core/user"
)

// system acts on behalf of the operator running the CLI.
var system = user.User{Name: "system", Access: user.SuperAdmin{}}

func (cli *commandLine) createSuperAdmin(name, email, pwd string) error {
	usr, err := cli.usrSvc.Create(context.Background(), system, user.NewUser{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Access:          user.AccessSpec{Kind: user.AccessSuperAdmin},
	})
	if err != nil {
		return err
	}
	logger.Printf("super admin %q created (id: %s)\n", usr.Email, usr.ID)
	return nil
}
