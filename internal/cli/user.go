package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arrowlimo/alms/internal/auth"
	"github.com/arrowlimo/alms/internal/model"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}

	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Long: `Creates a user with the given role. Without --password-stdin a random
password is generated and printed once.`,
		Args: cobra.ExactArgs(1),
		RunE: runUserAdd,
	}
	addCmd.Flags().String("role", string(model.RoleViewer), "Role: admin|bookkeeper|viewer")
	addCmd.Flags().Bool("password-stdin", false, "Read the password from stdin")

	resetCmd := &cobra.Command{
		Use:   "reset-password <username>",
		Short: "Replace a user's password",
		Long: `Sets a new password. Without --password-stdin a random password is
generated and printed once.`,
		Args: cobra.ExactArgs(1),
		RunE: runUserResetPassword,
	}
	resetCmd.Flags().Bool("password-stdin", false, "Read the password from stdin")

	cmd.AddCommand(addCmd, resetCmd)
	return cmd
}

// passwordFromFlags returns the password read from stdin when
// --password-stdin is set, or "" so one is generated.
func passwordFromFlags(cmd *cobra.Command) (string, error) {
	fromStdin, err := boolFlag(cmd, "password-stdin")
	if err != nil || !fromStdin {
		return "", err
	}
	return readPassword(cmd.InOrStdin())
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("read password: stdin was empty")
	}
	return pw, nil
}

func usersFor(s *session) (*auth.Users, error) {
	jwtMgr, err := auth.NewJWTManager(s.cfg.JWTPrivateKeyPath, s.cfg.JWTPublicKeyPath, s.cfg.JWTExpiration)
	if err != nil {
		return nil, err
	}
	return auth.NewUsers(s.db, jwtMgr, s.logger), nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	rawRole, err := OptionalStringFlag(cmd, "role")
	if err != nil {
		return err
	}
	role, err := model.ParseRole(rawRole)
	if err != nil {
		return err
	}
	password, err := passwordFromFlags(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()
	users, err := usersFor(s)
	if err != nil {
		return err
	}

	u, generated, err := users.AddUser(cmd.Context(), args[0], role, password)
	if err != nil {
		return err
	}
	return printCredentials(cmd.OutOrStdout(), fmt.Sprintf("created %s (%s)", u.Username, u.Role), generated)
}

func runUserResetPassword(cmd *cobra.Command, args []string) error {
	password, err := passwordFromFlags(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()
	users, err := usersFor(s)
	if err != nil {
		return err
	}

	generated, err := users.ResetPassword(cmd.Context(), args[0], password)
	if err != nil {
		return err
	}
	return printCredentials(cmd.OutOrStdout(), "password reset for "+args[0], generated)
}

func printCredentials(w io.Writer, summary, generated string) error {
	if _, err := fmt.Fprintln(w, summary); err != nil {
		return err
	}
	if generated == "" {
		return nil
	}
	_, err := fmt.Fprintf(w, "password: %s\n(shown once; store it now)\n", generated)
	return err
}
