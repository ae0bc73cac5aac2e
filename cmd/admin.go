package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/config"
	"github.com/ebogdum/vizgate/store"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token commands",
	}

	var username string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a registered user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg config.AppConfig, s store.Store) error {
				if _, err := s.GetUserByUsername(ctx, username); err != nil {
					return fmt.Errorf("failed to look up user %s: %w", username, err)
				}
				tokens := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenTTL)
				token, err := tokens.Generate(username)
				if err != nil {
					return err
				}
				fmt.Printf("%s %s\n", auth.BearerPrefix, token)
				return nil
			})
		},
	}
	issue.Flags().StringVarP(&username, "username", "u", "", "Username the token is issued for")
	_ = issue.MarkFlagRequired("username")

	cmd.AddCommand(issue)
	return cmd
}

func platformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Platform registration commands",
	}

	var p store.Platform
	var platformType string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a platform and print its auth code",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Type = store.PlatformType(strings.ToLower(platformType))
			if p.Type != store.PlatformTrusted && p.Type != store.PlatformSigned {
				return fmt.Errorf("platform type must be %s or %s", store.PlatformTrusted, store.PlatformSigned)
			}
			if p.Code == "" {
				p.Code = uuid.NewString()
			}
			if p.Type == store.PlatformSigned && p.CheckCode == "" {
				p.CheckCode = strings.ReplaceAll(uuid.NewString(), "-", "")
			}

			return withStore(func(ctx context.Context, cfg config.AppConfig, s store.Store) error {
				if err := s.CreatePlatform(ctx, &p); err != nil {
					return err
				}
				fmt.Printf("Platform %d registered\n", p.ID)
				fmt.Printf("Auth code: %s\n", p.Code)
				if p.CheckCode != "" {
					fmt.Printf("Check code: %s\n", p.CheckCode)
				}
				return nil
			})
		},
	}
	add.Flags().StringVar(&p.Name, "name", "", "Platform name")
	add.Flags().StringVar(&platformType, "type", string(store.PlatformTrusted), "Strategy: trusted or signed")
	add.Flags().StringVar(&p.Code, "code", "", "Auth code (generated when empty)")
	add.Flags().StringVar(&p.CheckCode, "check-code", "", "Signing secret for signed platforms (generated when empty)")
	add.Flags().StringVar(&p.Description, "description", "", "Free-form description")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User registration commands",
	}

	var u store.User
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			u.Active = true
			return withStore(func(ctx context.Context, cfg config.AppConfig, s store.Store) error {
				if err := s.CreateUser(ctx, &u); err != nil {
					return err
				}
				fmt.Printf("User %s registered with id %d\n", u.Username, u.ID)
				return nil
			})
		},
	}
	add.Flags().StringVarP(&u.Username, "username", "u", "", "Username")
	add.Flags().StringVar(&u.Email, "email", "", "Email address")
	add.Flags().StringVar(&u.Name, "name", "", "Display name")
	add.Flags().BoolVar(&u.Admin, "admin", false, "Grant admin rights")
	_ = add.MarkFlagRequired("username")

	cmd.AddCommand(add)
	return cmd
}

// withStore loads configuration, opens the configured store and runs fn with
// a bounded context.
func withStore(fn func(ctx context.Context, cfg config.AppConfig, s store.Store) error) error {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	s, err := openStore(cfg.Store, zap.NewNop())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, cfg, s)
}
