package main

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"

	"giteakit/client"
	apperrors "giteakit/internal/errors"
	"giteakit/internal/gitea"

	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the Gitea server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := kit.Client.CheckIfServerOnline(ctx, cfg.Gitea.Server); err != nil {
				return err
			}
			version, err := kit.Gitea.Version(ctx)
			if err != nil {
				return fmt.Errorf("reading server version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (Gitea %s)\n", green.Sprint("online"), cfg.Gitea.Server, version)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var (
		password  string
		tokenName string
	)

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Trade a username and password for an access token",
		Long: `Checks the credentials and creates an access token named --token-name,
replacing an earlier token of that name. The password is read from stdin
when --password is not given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			auth, err := kit.Gitea.Authenticate(cmd.Context(), args[0], password, tokenName)
			if err != nil {
				return &reportedError{err: err, friendly: apperrors.ParseLoginError(err, apperrors.DefaultMessages)}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s as %s\n", green.Sprint("Logged in"), auth.User.Name())
			fmt.Fprintf(out, "export GITEAKIT_GITEA_TOKEN=%s\n", auth.Config.Token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&tokenName, "token-name", "giteakit", "name of the access token to create")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the configured credentials belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := kit.Gitea.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d) %s\n", user.Name(), user.ID, faint.Sprint(user.Email))
			return nil
		},
	}
}

func orgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orgs [username]",
		Short: "List organizations of a user, or of the current user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var username string
			if len(args) == 1 {
				username = args[0]
			}
			orgs, err := kit.Gitea.ListUserOrganizations(cmd.Context(), username)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, org := range orgs {
				fmt.Fprintf(tw, "%s\t%s\n", org.Username, org.FullName)
			}
			return tw.Flush()
		},
	}
}

func reposCmd() *cobra.Command {
	var (
		query string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "repos [org]",
		Short: "List the repositories of an organization, or search all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				repos []gitea.Repository
				err   error
			)
			switch {
			case len(args) == 1 && query == "":
				repos, err = kit.Gitea.ListOrganizationRepositories(ctx, args[0])
			case query != "" || len(args) == 0:
				q := gitea.SearchQuery{Query: query, Limit: limit}
				if len(args) == 1 {
					q.UID, err = kit.Gitea.GetUID(ctx, args[0])
					if err != nil {
						return err
					}
				}
				repos, err = kit.Gitea.SearchRepositories(ctx, q)
			}
			if err != nil {
				return err
			}

			printRepos(cmd, repos)
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "search", "s", "", "search keyword")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of search results")
	return cmd
}

func printRepos(cmd *cobra.Command, repos []gitea.Repository) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, r := range repos {
		access := faint.Sprint("read")
		if r.Writeable() {
			access = green.Sprint("push")
		}
		tag := ""
		if t := r.ProdTag(); t != "" {
			tag = yellow.Sprint(t)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.FullName, r.DefaultBranch, access, tag)
	}
	tw.Flush()
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [endpoint]",
		Short: "Drop every cached response, or the one of endpoint",
		Long: `Without an argument the whole cache is dropped. An endpoint such as
api/v1/orgs/unfoldingWord/repos, query included, drops only that response.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 {
				if err := kit.Cache.Clear(ctx); err != nil {
					return fmt.Errorf("clearing cache: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
				return nil
			}

			endpoint, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing endpoint %q: %w", args[0], err)
			}
			var params url.Values
			if endpoint.RawQuery != "" {
				params = endpoint.Query()
			}
			endpoint.RawQuery = ""
			err = kit.Client.Invalidate(ctx, client.GetRequest{
				URL:    endpoint.String(),
				Params: params,
				Config: kit.Gitea.Config(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s\n", args[0])
			return nil
		},
	})
	return cmd
}
