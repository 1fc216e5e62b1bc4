package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"queuehive/internal/apiclient"
	"queuehive/internal/cli"
	"queuehive/internal/models"
	"queuehive/internal/view"
)

var stdin = bufio.NewReader(os.Stdin)

// readSecret prompts on the terminal without echo. Piped input is read as
// one line.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func loginCommand(a *app) *cli.Command {
	var email, password string
	return &cli.Command{
		Name:    "login",
		Summary: "Log in and store the session",
		Usage:   "queuehive login --email <email>",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
			fs.StringVar(&email, "email", "", "account email")
			fs.StringVar(&password, "password", "", "password (prompted when empty)")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := a.client(ctx)
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readSecret("Password: "); err != nil {
					return err
				}
			}
			resp, err := client.Login(ctx, apiclient.LoginRequest{Email: email, Password: password})
			if err != nil {
				return err
			}
			identity, err := a.sessions.Login(ctx, resp, "")
			if err != nil {
				return err
			}
			if me, err := client.Me(ctx); err == nil && me.FullName != "" {
				if err := a.sessions.UpdateProfile(ctx, me.FullName); err == nil {
					identity.FullName = me.FullName
				}
			}
			name := identity.FullName
			if name == "" {
				name = email
			}
			fmt.Fprintf(stdout, "Logged in as %s (%s). Home: %s\n", name, identity.Role, view.HomeRoute(identity.Role))
			return nil
		},
	}
}

func registerCommand(a *app) *cli.Command {
	var req apiclient.RegisterRequest
	return &cli.Command{
		Name:    "register",
		Summary: "Create a user account",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
			fs.StringVar(&req.FullName, "name", "", "full name")
			fs.StringVar(&req.Email, "email", "", "email")
			fs.StringVar(&req.Phone, "phone", "", "phone number")
			fs.StringVar(&req.Password, "password", "", "password (prompted when empty)")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := a.client(ctx)
			if err != nil {
				return err
			}
			if req.Password == "" {
				if req.Password, err = readSecret("Password: "); err != nil {
					return err
				}
			}
			user, err := client.Register(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Registered user %d (%s). Run 'queuehive login' to continue.\n", user.ID, user.Email)
			return nil
		},
	}
}

func registerCompanyCommand(a *app) *cli.Command {
	var req apiclient.RegisterCompanyRequest
	return &cli.Command{
		Name:    "register-company",
		Summary: "Register a company and its admin account",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("register-company", pflag.ContinueOnError)
			fs.StringVar(&req.FullName, "name", "", "admin full name")
			fs.StringVar(&req.Email, "email", "", "admin email")
			fs.StringVar(&req.Phone, "phone", "", "admin phone number")
			fs.StringVar(&req.Password, "password", "", "password (prompted when empty)")
			fs.StringVar(&req.CompanyName, "company", "", "company name")
			fs.StringVar(&req.CompanyDescription, "description", "", "company description")
			fs.StringVar(&req.CompanyLocation, "location", "", "company location")
			fs.StringVar(&req.CompanyCategory, "category", "", "company category")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := a.client(ctx)
			if err != nil {
				return err
			}
			if req.Password == "" {
				if req.Password, err = readSecret("Password: "); err != nil {
					return err
				}
			}
			if _, err := client.RegisterCompany(ctx, req); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Company %q registered. You can log in once a super admin approves it.\n", req.CompanyName)
			return nil
		},
	}
}

func logoutCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "logout",
		Summary: "Remove the stored session",
		Run: func(ctx context.Context, args []string) error {
			if err := a.init(ctx); err != nil {
				return err
			}
			if err := a.sessions.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Logged out.")
			return nil
		},
	}
}

func whoamiCommand(a *app) *cli.Command {
	var out outputFlags
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the stored session",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			out.add(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			identity, err := a.identity(ctx)
			if err != nil {
				return err
			}
			if out.json {
				return printJSON(map[string]any{
					"userId":    identity.UserID,
					"role":      identity.Role,
					"companyId": identity.CompanyID,
					"fullName":  identity.FullName,
					"expiresAt": identity.ExpiresAt,
				})
			}
			fmt.Fprintf(stdout, "user %d  role %s", identity.UserID, identity.Role)
			if identity.HasCompany() {
				fmt.Fprintf(stdout, "  company %d", identity.CompanyID)
			}
			if identity.FullName != "" {
				fmt.Fprintf(stdout, "  %s", identity.FullName)
			}
			if !identity.ExpiresAt.IsZero() {
				fmt.Fprintf(stdout, "  expires %s", identity.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(stdout)
			return nil
		},
	}
}

func profileCommand(a *app) *cli.Command {
	var out outputFlags
	var update apiclient.UpdateProfileRequest
	return &cli.Command{
		Name:    "profile",
		Summary: "Show or change your profile",
		Subcommands: []*cli.Command{
			{
				Name:    "show",
				Summary: "Show your profile",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					client, err := a.client(ctx)
					if err != nil {
						return err
					}
					me, err := client.Me(ctx)
					if err != nil {
						return err
					}
					return out.printUsers([]models.User{me})
				},
			},
			{
				Name:    "update",
				Summary: "Change your name or phone number",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("update", pflag.ContinueOnError)
					fs.StringVar(&update.FullName, "name", "", "full name")
					fs.StringVar(&update.PhoneNumber, "phone", "", "phone number")
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					client, err := a.client(ctx)
					if err != nil {
						return err
					}
					user, err := client.UpdateProfile(ctx, update)
					if err != nil {
						return err
					}
					if err := a.sessions.UpdateProfile(ctx, user.FullName); err != nil {
						return err
					}
					fmt.Fprintf(stdout, "Profile updated: %s\n", user.FullName)
					return nil
				},
			},
			{
				Name:    "password",
				Summary: "Change your password",
				Run: func(ctx context.Context, args []string) error {
					identity, err := a.identity(ctx)
					if err != nil {
						return err
					}
					current, err := readSecret("Current password: ")
					if err != nil {
						return err
					}
					next, err := readSecret("New password: ")
					if err != nil {
						return err
					}
					req := apiclient.UpdatePasswordRequest{CurrentPassword: current, NewPassword: next}
					if err := a.api.UpdatePassword(ctx, identity.UserID, req); err != nil {
						return err
					}
					fmt.Fprintln(stdout, "Password changed.")
					return nil
				},
			},
		},
	}
}
