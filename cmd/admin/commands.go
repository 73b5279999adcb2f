package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"taskmanager/api/internal/database"
	"taskmanager/api/internal/ids"
	"taskmanager/api/internal/models"
	"taskmanager/api/internal/repository"
	"taskmanager/api/internal/security"
	"taskmanager/api/internal/service"
	"taskmanager/api/internal/validation"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := database.Migrate(cmd.Context(), e.pool); err != nil {
				return err
			}
			e.logger.Info().Msg("migrations applied")
			return nil
		},
	}
}

func newPromoteCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Grant the admin role to an existing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := promote(cmd.Context(), repository.NewUserRepository(e.pool), email)
			if err != nil {
				return err
			}
			e.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("user promoted to admin")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the account to promote")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newCreateAdminCommand() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an active admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			hasher := security.NewPasswordHasher(security.ParamsFromConfig(e.cfg.Security.Argon2))
			user, err := createAdmin(cmd.Context(), repository.NewUserRepository(e.pool), hasher, name, email, password)
			if err != nil {
				return err
			}
			e.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("admin created")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	for _, f := range []string{"name", "email", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func promote(ctx context.Context, users service.UserStore, email string) (models.User, error) {
	user, err := users.FindByEmail(ctx, service.NormalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("no account with email %q", email)
	}
	if err != nil {
		return models.User{}, err
	}
	return users.SetRole(ctx, user.ID, models.UserRoleAdmin)
}

var accountRules = validation.New()

// adminAccount carries the same rules as the public registration request.
type adminAccount struct {
	Name     string `validate:"required,min=2,max=50,personname"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,password"`
}

func createAdmin(ctx context.Context, users service.UserStore, hasher *security.PasswordHasher, name, email, password string) (models.User, error) {
	account := adminAccount{
		Name:     strings.TrimSpace(name),
		Email:    service.NormalizeEmail(email),
		Password: password,
	}
	if err := checkAccount(account); err != nil {
		return models.User{}, err
	}

	hash, err := hasher.Hash(account.Password)
	if err != nil {
		return models.User{}, err
	}

	now := time.Now().UTC()
	user := models.User{
		ID:        ids.New(),
		Name:      account.Name,
		Email:     account.Email,
		Role:      models.UserRoleAdmin,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = users.Create(ctx, models.Credentials{User: user, PasswordHash: hash})
	if errors.Is(err, repository.ErrEmailTaken) {
		return models.User{}, fmt.Errorf("email %q is already registered, use promote instead", account.Email)
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func checkAccount(account adminAccount) error {
	err := accountRules.Struct(account)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s fails %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid account: %s", strings.Join(problems, ", "))
}
