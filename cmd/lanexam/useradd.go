package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

type newUser struct {
	Username string         `validate:"required,min=2,max=64"`
	Password string         `validate:"required,min=6"`
	Role     model.UserRole `validate:"oneof=student teacher"`
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd USERNAME",
		Short: "Create a student or teacher account",
		Args:  cobra.ExactArgs(1),
		RunE:  runUseradd,
	}
	f := cmd.Flags()
	addDBFlags(cmd)
	f.String("password", "", "Password (or set LANEXAM_PASSWORD)")
	f.String("display-name", "", "Name shown on results (defaults to the username)")
	f.String("role", string(model.UserRoleStudent), "Account role (student, teacher)")
	f.String("year", "", "Year level, for exams restricted by year")
	f.String("section", "", "Section, for exams restricted by section")
	addLogFlags(cmd, "warn")
	return cmd
}

func runUseradd(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v, os.Stderr)

	u := newUser{
		Username: args[0],
		Password: v.GetString("password"),
		Role:     model.UserRole(v.GetString("role")),
	}
	if err := model.Validate(u); err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if existing, err := db.GetUserByUsername(ctx, u.Username); err != nil {
		return err
	} else if existing != nil {
		return errors.New("username " + u.Username + " is taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	display := v.GetString("display-name")
	if display == "" {
		display = u.Username
	}
	id, err := db.CreateUser(ctx, model.User{
		Username:     u.Username,
		DisplayName:  display,
		PasswordHash: string(hash),
		Role:         u.Role,
		Year:         v.GetString("year"),
		Section:      v.GetString("section"),
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", u.Role, u.Username, id)
	return nil
}
