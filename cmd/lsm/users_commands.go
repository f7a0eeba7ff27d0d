package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"lsm/internal/auth"
	"lsm/internal/mapper"
	"lsm/internal/validate"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage admin panel accounts",
	}
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersAddCommand(ctx))
	usersCmd.AddCommand(newUsersPasswdCommand(ctx))
	usersCmd.AddCommand(newUsersRolesCommand(ctx))
	return usersCmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withMapper(func(m *mapper.Mapper) error {
				users := auth.NewUserMapper(m)
				items, _, err := users.Index(commandCtx(cmd), mapper.NewPagination(1, 10000), search)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No users found")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, u := range items {
					lastLogin := "never"
					if u.LastLoginAt != nil {
						lastLogin = humanize.Time(*u.LastLoginAt)
					}
					rows = append(rows, []string{
						strconv.FormatInt(u.ID, 10),
						u.Name,
						u.Email,
						u.RoleName,
						activeLabel(u.Status),
						lastLogin,
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Name", "Email", "Role", "Status", "Last login"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Filter by name or email")
	return cmd
}

// cliUserRules reuses the web form rules for the fields the shell collects.
var cliUserRules = validate.Rules{
	"name":     auth.UserCreateRules["name"],
	"email":    auth.UserCreateRules["email"],
	"password": auth.UserCreateRules["password"],
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	var (
		name     string
		email    string
		role     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Long:  "Create an active account. Without --password the password is read from the first line of stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readPassword(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			input := url.Values{"name": {name}, "email": {email}, "password": {password}}
			v := validate.New()
			if !v.Check(input, cliUserRules) {
				return fmt.Errorf("invalid user: %s", strings.Join(v.Messages(), "; "))
			}
			return ctx.withMapper(func(m *mapper.Mapper) error {
				users := auth.NewUserMapper(m)
				c := commandCtx(cmd)
				taken, err := users.EmailTaken(c, email, 0)
				if err != nil {
					return err
				}
				if taken {
					return fmt.Errorf("email %s is already in use", email)
				}
				u, err := users.Create(c, name, email, role, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s, %s)\n", u.ID, u.Email, u.RoleName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&role, "role", "author", "Role name (see: lsm users roles)")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUsersPasswdCommand(ctx *commandContext) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd <email>",
		Short: "Replace an account's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readPassword(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			v := validate.New()
			if !v.Check(url.Values{"password": {password}}, validate.Rules{"password": cliUserRules["password"]}) {
				return fmt.Errorf("invalid password: %s", strings.Join(v.Messages(), "; "))
			}
			return ctx.withMapper(func(m *mapper.Mapper) error {
				users := auth.NewUserMapper(m)
				c := commandCtx(cmd)
				u, err := users.ByEmail(c, args[0])
				if errors.Is(err, mapper.ErrNotFound) {
					return fmt.Errorf("no user with email %s", args[0])
				}
				if err != nil {
					return err
				}
				if err := users.SetPassword(c, u.ID, password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", u.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "New password (read from stdin when empty)")
	return cmd
}

func newUsersRolesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List roles and their privileges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withMapper(func(m *mapper.Mapper) error {
				c := commandCtx(cmd)
				roles, err := auth.NewUserMapper(m).Roles(c)
				if err != nil {
					return err
				}
				grants, err := m.RawQuery(c, `
                    SELECT rp.role_id AS role_id, p.name AS name
                    FROM role_privileges rp
                    JOIN privileges p ON p.id = rp.privilege_id
                    ORDER BY p.name`)
				if err != nil {
					return err
				}
				byRole := make(map[string][]string)
				for _, g := range grants {
					key := fmt.Sprint(g["role_id"])
					byRole[key] = append(byRole[key], fmt.Sprint(g["name"]))
				}
				rows := make([][]string, 0, len(roles))
				for _, r := range roles {
					privs := byRole[strconv.FormatInt(r.ID, 10)]
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10),
						r.Name,
						r.Description,
						strings.Join(privs, ", "),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Role", "Description", "Privileges"},
					rows,
					[]columnAlignment{alignRight},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func readPassword(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required (use --password or pipe it on stdin)")
	}
	return line, nil
}
