package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/service"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development JWT with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
	f := cmd.Flags()
	f.String("type", "student", "Token type (student, teacher)")
	f.Int("user", 0, "Student or teacher id (required)")
	f.StringSlice("perm", nil, "Teacher permission codes (repeatable); defaults to all")
	f.Duration("ttl", 0, "Token lifetime (defaults to JWT_EXPIRY_HOURS)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	kind, _ := f.GetString("type")
	userID, _ := f.GetInt("user")
	perms, _ := f.GetStringSlice("perm")
	ttl, _ := f.GetDuration("ttl")

	tokenType, perms, err := tokenScope(kind, perms)
	if err != nil {
		return err
	}
	if userID <= 0 {
		return fmt.Errorf("--user must be positive")
	}

	auth := service.NewAuthService(config.Load())
	token, err := auth.GenerateToken(tokenType, userID, perms, ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// tokenScope resolves the token type and the permissions it carries.
// Student tokens never carry permissions.
func tokenScope(kind string, perms []string) (service.TokenType, []string, error) {
	switch service.TokenType(kind) {
	case service.TokenTypeStudent:
		return service.TokenTypeStudent, nil, nil
	case service.TokenTypeTeacher:
		if len(perms) == 0 {
			perms = []string{service.PermExamsWrite, service.PermSubmissionsRead, service.PermSubmissionsGrade}
		}
		return service.TokenTypeTeacher, perms, nil
	default:
		return "", nil, fmt.Errorf("unknown token type %q", kind)
	}
}

