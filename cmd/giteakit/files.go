package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"giteakit/internal/diff"
	"giteakit/internal/draft"
	apperrors "giteakit/internal/errors"
	"giteakit/internal/file"
	"giteakit/internal/gitea"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNoProdTag = errors.New("repository has no published release")

// resolveRepo fetches owner/name and pins the working branch when one is
// given.
func resolveRepo(ctx context.Context, arg, branch string) (*gitea.Repository, error) {
	owner, name, err := splitRepo(arg)
	if err != nil {
		return nil, err
	}
	repo, err := kit.Gitea.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	repo.Branch = branch
	return repo, nil
}

func newSession(defaultContent string) *file.Session {
	return file.New(kit.Gitea, file.Options{
		DefaultContent: defaultContent,
		Autosave:       kit.Drafts,
		CatalogOrg:     cfg.Gitea.CatalogOrg,
		Logger:         logger.Named("session"),
	})
}

func catalogOrg(repo *gitea.Repository) string {
	if cfg.Gitea.CatalogOrg != "" {
		return cfg.Gitea.CatalogOrg
	}
	return repo.OwnerName()
}

// remoteContent reads filepath from the working branch, or from the
// production release when published is set. It never creates the file.
func remoteContent(ctx context.Context, repo *gitea.Repository, filepath string, published bool) (*gitea.Contents, string, error) {
	if published {
		tag := repo.ProdTag()
		if tag == "" {
			return nil, "", errNoProdTag
		}
		content, err := kit.Gitea.FetchCatalogContent(ctx, catalogOrg(repo), repo.Name, tag, filepath)
		return nil, content, err
	}

	contents, err := kit.Gitea.GetContents(ctx, repo.OwnerName(), repo.Name, filepath, repo.WorkingBranch())
	if err != nil {
		return nil, "", err
	}
	content, err := kit.Gitea.FileContent(ctx, contents)
	return contents, content, err
}

func fileCmd() *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "file",
		Short: "Read, write, diff and delete repository files",
	}
	cmd.PersistentFlags().StringVarP(&branch, "branch", "b", "", "working branch (default: the repository's default branch)")

	cmd.AddCommand(
		fileShowCmd(&branch),
		filePutCmd(&branch),
		fileRmCmd(&branch),
		fileDiffCmd(&branch),
	)
	return cmd
}

func fileShowCmd(branch *string) *cobra.Command {
	var published, plain bool

	cmd := &cobra.Command{
		Use:   "show <owner/repo> <filepath>",
		Short: "Print a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := resolveRepo(ctx, args[0], *branch)
			if err != nil {
				return err
			}
			_, content, err := remoteContent(ctx, repo, args[1], published)
			if err != nil {
				return err
			}

			if plain {
				_, err = fmt.Fprint(cmd.OutOrStdout(), content)
				return err
			}
			return highlight(cmd.OutOrStdout(), args[1], content)
		},
	}

	cmd.Flags().BoolVar(&published, "published", false, "show the copy in the production release")
	cmd.Flags().BoolVar(&plain, "plain", false, "do not highlight")
	return cmd
}

func filePutCmd(branch *string) *cobra.Command {
	return &cobra.Command{
		Use:   "put <owner/repo> <filepath> <local file>",
		Short: "Create or update a file from a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[2], err)
			}
			local := string(data)

			repo, err := resolveRepo(ctx, args[0], *branch)
			if err != nil {
				return err
			}

			_, _, err = remoteContent(ctx, repo, args[1], false)
			exists := err == nil
			if err != nil && !apperrors.IsNotFound(err) {
				return err
			}

			// a missing file is created with the local content on open
			s := newSession(local)
			defer s.Close()
			if err := s.SetRepository(ctx, repo); err != nil {
				return err
			}
			if err := s.Open(ctx, args[1]); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintf(out, "%s %s on %s\n", green.Sprint("Created"), args[1], s.Branch())
				return nil
			}

			rec, err := s.Save(ctx, local)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s on %s %s\n", green.Sprint("Updated"), rec.Filepath, rec.Branch, faint.Sprint(rec.SHA))
			return nil
		},
	}
}

func fileRmCmd(branch *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <owner/repo> <filepath>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := resolveRepo(ctx, args[0], *branch)
			if err != nil {
				return err
			}
			// opening would create a missing file
			if _, _, err := remoteContent(ctx, repo, args[1], false); err != nil {
				return err
			}

			s := newSession("")
			defer s.Close()
			if err := s.SetRepository(ctx, repo); err != nil {
				return err
			}
			if err := s.Open(ctx, args[1]); err != nil {
				return err
			}

			deleted, err := s.Delete(ctx)
			if err != nil {
				return err
			}
			if !deleted {
				yellow.Fprintf(cmd.ErrOrStderr(), "No push permission on %s, nothing deleted\n", repo.FullName)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", red.Sprint("Deleted"), args[1])
			return nil
		},
	}
}

func fileDiffCmd(branch *string) *cobra.Command {
	var (
		published    bool
		contextLines int
	)

	cmd := &cobra.Command{
		Use:   "diff <owner/repo> <filepath> <local file>",
		Short: "Compare a file with a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[2], err)
			}

			repo, err := resolveRepo(ctx, args[0], *branch)
			if err != nil {
				return err
			}
			_, remote, err := remoteContent(ctx, repo, args[1], published)
			if err != nil {
				return err
			}

			ref := repo.WorkingBranch()
			if published {
				ref = repo.ProdTag()
			}
			result := diff.NewEngine(contextLines).Diff(remote, string(data))
			printDiff(cmd.OutOrStdout(), result, ref+":"+args[1], args[2])
			return nil
		},
	}

	cmd.Flags().BoolVar(&published, "published", false, "compare with the production release")
	cmd.Flags().IntVarP(&contextLines, "context", "U", 3, "lines of context")
	return cmd
}

func watchCmd() *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "watch <owner/repo> <filepath> <local file>",
		Short: "Keep a local file as the draft of a repository file",
		Long: `Every time the local file is written its content is stored as the
draft of the repository file. Drafts replace the server content when the
file is opened, until it is saved with "file put".`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			repo, err := resolveRepo(ctx, args[0], branch)
			if err != nil {
				return err
			}
			contents, _, err := remoteContent(ctx, repo, args[1], false)
			if err != nil {
				return err
			}

			target := file.CacheRequest{
				Repository: repo,
				Branch:     repo.WorkingBranch(),
				HTMLURL:    contents.HTMLURL,
				Filepath:   contents.Path,
			}
			w, err := draft.NewWatcher(args[2], target, kit.Drafts, logger.Named("watcher"))
			if err != nil {
				return err
			}
			defer w.Close()

			out := cmd.OutOrStdout()
			w.OnSave = func(content string) {
				fmt.Fprintf(out, "%s %s %s\n", faint.Sprint(time.Now().Format(time.TimeOnly)), green.Sprint("draft saved"), args[1])
			}

			fmt.Fprintf(out, "Watching %s for %s, Ctrl-C to stop\n", args[2], contents.HTMLURL)
			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "working branch (default: the repository's default branch)")
	return cmd
}

func draftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List local drafts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := kit.Drafts.List()
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No drafts")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range drafts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d bytes\n",
					d.SavedAt.Local().Format(time.DateTime), d.Repository, d.Filepath, len(d.Content))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "drop <html_url>",
		Short: "Discard a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kit.Drafts.Save(cmd.Context(), file.CacheRequest{HTMLURL: args[0]}, nil); err != nil {
				return err
			}
			logger.Debug("draft dropped", zap.String("html_url", args[0]))
			fmt.Fprintln(cmd.OutOrStdout(), "Draft dropped")
			return nil
		},
	})
	return cmd
}
