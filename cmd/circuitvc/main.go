// cmd/circuitvc/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"circuitvc/internal/config"
	"circuitvc/internal/diff"
	vcerrors "circuitvc/internal/errors"
	"circuitvc/internal/engine"
	"circuitvc/internal/revision"
	"circuitvc/internal/triple"
	"circuitvc/internal/watch"
	"circuitvc/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger = zap.NewNop()
	eng    *engine.Engine

	configPath string
	repoName   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "circuitvc",
	Short: "circuitvc versions genetic circuit designs",
	Long: `circuitvc is a version control system for genetic circuit designs stored
as RDF triples. Revisions, branches, merges and tags work like git, over
statements instead of lines.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			var err error
			if logger, err = zap.NewDevelopment(); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		eng, err = engine.Open(cfg, logger)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		logger.Sync()
		return eng.Close()
	},
}

// loadConfig reads --config, or the config of the workspace enclosing the
// working directory. init creates the workspace when there is none.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	root, err := workspace.FindRoot(".")
	if errors.Is(err, workspace.ErrNotFound) && cmd.Name() == "init" {
		if err := workspace.Initialize("."); err != nil {
			return nil, fmt.Errorf("initializing workspace: %w", err)
		}
		root, err = workspace.FindRoot(".")
	}
	if err != nil {
		return nil, fmt.Errorf("%w (run circuitvc init)", err)
	}
	return workspace.Load(root)
}

// currentRepo looks up the repository named by --repo.
func currentRepo(ctx context.Context) (*revision.Repository, error) {
	if repoName == "" {
		return nil, fmt.Errorf("--repo is required")
	}
	return eng.FindRepository(ctx, repoName)
}

func readTriples(path string) (triple.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return triple.Parse(f)
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init <name>",
		Short: "Create a repository with an empty master branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")
			repo, err := eng.CreateRepo(cmd.Context(), args[0], revision.ActionInfo{Message: message})
			if err != nil {
				return fmt.Errorf("creating repository: %w", err)
			}
			fmt.Printf("Initialized empty repository %s (%s)\n", repo.Name, repo.URI)
			return nil
		},
	}
	initCmd.Flags().StringP("message", "m", "Create repository", "Creation message")

	var repoCmd = &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
	}
	var listReposCmd = &cobra.Command{
		Use:   "list",
		Short: "List repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := eng.ListRepositories(cmd.Context())
			if err != nil {
				return err
			}
			if len(repos) == 0 {
				fmt.Println("No repositories found")
				return nil
			}
			for _, r := range repos {
				fmt.Printf("%s  %s  %s\n", r.Name, r.URI, r.Created.Timestamp.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	repoCmd.AddCommand(listReposCmd)

	var commitCmd = &cobra.Command{
		Use:   "commit <file.nt>",
		Short: "Commit an N-Triples file as the branch's new content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			branchName, _ := cmd.Flags().GetString("branch")
			message, _ := cmd.Flags().GetString("message")

			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}
			final, err := readTriples(args[0])
			if err != nil {
				return err
			}
			b, err := eng.FindBranch(ctx, repo.URI, branchName)
			if err != nil {
				return err
			}
			current, err := eng.Content(ctx, b.HeadRevision)
			if err != nil {
				return err
			}

			d := diff.Compute(current, final)
			if d.IsEmpty() {
				fmt.Println("Nothing to commit")
				return nil
			}
			rev, err := eng.Commit(ctx, b, d, revision.ActionInfo{Message: message})
			if err != nil {
				return fmt.Errorf("committing: %w", err)
			}
			stats := d.Stats()
			fmt.Printf("[%s %s] %s\n %d additions, %d removals\n",
				b.Name, engine.ShortID(rev.URI), message, stats.Additions, stats.Removals)
			return nil
		},
	}
	commitCmd.Flags().StringP("branch", "b", revision.MasterBranch, "Branch to commit on")
	commitCmd.Flags().StringP("message", "m", "", "Commit message")

	var branchCmd = &cobra.Command{
		Use:   "branch",
		Short: "Manage branches",
	}
	var createBranchCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Fork a branch at a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			from, _ := cmd.Flags().GetString("from")
			message, _ := cmd.Flags().GetString("message")

			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}
			src, err := eng.Resolve(ctx, repo.URI, from)
			if err != nil {
				return err
			}
			b, err := eng.Branch(ctx, src.URI, args[0], revision.ActionInfo{Message: message})
			if err != nil {
				return fmt.Errorf("creating branch: %w", err)
			}
			fmt.Printf("Created branch %s at %s\n", b.Name, engine.ShortID(src.URI))
			return nil
		},
	}
	createBranchCmd.Flags().String("from", revision.MasterBranch, "Ref to fork from")
	createBranchCmd.Flags().StringP("message", "m", "", "Branch message")

	var listBranchesCmd = &cobra.Command{
		Use:   "list",
		Short: "List branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			match, _ := cmd.Flags().GetString("match")

			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}
			branches, err := eng.ListBranches(ctx, repo.URI, match)
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			for _, b := range branches {
				head := "(no commits)"
				if b.HeadRevision != "" {
					head = engine.ShortID(b.HeadRevision)
				}
				fmt.Printf("%s  %s\n", green(b.Name), head)
			}
			return nil
		},
	}
	listBranchesCmd.Flags().String("match", "", "Glob the branch names must match")
	branchCmd.AddCommand(createBranchCmd, listBranchesCmd)

	var mergeCmd = &cobra.Command{
		Use:   "merge <ref>",
		Short: "Merge a revision into a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			into, _ := cmd.Flags().GetString("into")
			message, _ := cmd.Flags().GetString("message")
			resolved, _ := cmd.Flags().GetString("resolved")

			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}
			target, err := eng.FindBranch(ctx, repo.URI, into)
			if err != nil {
				return err
			}
			src, err := eng.Resolve(ctx, repo.URI, args[0])
			if err != nil {
				return err
			}
			if message == "" {
				message = fmt.Sprintf("Merge %s into %s", args[0], target.Name)
			}
			info := revision.ActionInfo{Message: message}

			var rev *revision.Revision
			if resolved != "" {
				var merged triple.Set
				if merged, err = readTriples(resolved); err != nil {
					return err
				}
				rev, err = eng.MergeWith(ctx, target, src.URI, merged, info)
			} else {
				rev, err = eng.Merge(ctx, target, src.URI, info)
			}
			if err != nil {
				printConflicts(err)
				return fmt.Errorf("merging: %w", err)
			}
			fmt.Printf("[%s %s] %s\n", target.Name, engine.ShortID(rev.URI), message)
			return nil
		},
	}
	mergeCmd.Flags().String("into", revision.MasterBranch, "Target branch")
	mergeCmd.Flags().StringP("message", "m", "", "Merge message")
	mergeCmd.Flags().String("resolved", "", "N-Triples file with the hand-resolved merge result")

	var tagCmd = &cobra.Command{
		Use:   "tag <name> [ref]",
		Short: "Name a revision",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			message, _ := cmd.Flags().GetString("message")

			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}
			ref := ""
			if len(args) == 2 {
				ref = args[1]
			}
			target, err := eng.Resolve(ctx, repo.URI, ref)
			if err != nil {
				return err
			}
			tag, err := eng.Tag(ctx, target.URI, args[0], revision.ActionInfo{Message: message})
			if err != nil {
				return fmt.Errorf("tagging: %w", err)
			}
			fmt.Printf("Tagged %s as %s\n", engine.ShortID(tag.TargetRevision), tag.Name)
			return nil
		},
	}
	tagCmd.Flags().StringP("message", "m", "", "Tag message")

	var logCmd = &cobra.Command{
		Use:   "log [ref]",
		Short: "Show the revision graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			showBranches, _ := cmd.Flags().GetBool("show-branches")

			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}
			head := ""
			if len(args) == 1 {
				head = args[0]
			}
			hist, err := eng.History(ctx, repo.URI, head, showBranches)
			if err != nil {
				return err
			}
			renderLog(cmd.OutOrStdout(), hist.View())
			return nil
		},
	}
	logCmd.Flags().Bool("show-branches", false, "Draw a row where each branch forks")

	var diffCmd = &cobra.Command{
		Use:   "diff <from> [to]",
		Short: "Show statements added and removed between two revisions",
		Long:  "With one ref, diffs it against its first parent.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}

			var from, to *revision.Revision
			if len(args) == 2 {
				if from, err = eng.Resolve(ctx, repo.URI, args[0]); err != nil {
					return err
				}
				if to, err = eng.Resolve(ctx, repo.URI, args[1]); err != nil {
					return err
				}
			} else if to, err = eng.Resolve(ctx, repo.URI, args[0]); err != nil {
				return err
			}

			fromURI := ""
			if from != nil {
				fromURI = from.URI
			} else if len(to.Parents) > 0 {
				fromURI = to.Parents[0]
			}
			d, err := eng.DiffRevisions(ctx, fromURI, to.URI)
			if err != nil {
				return err
			}
			renderDiff(cmd.OutOrStdout(), d)
			return nil
		},
	}

	var exportCmd = &cobra.Command{
		Use:   "export [ref]",
		Short: "Write a revision's content as N-Triples",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := currentRepo(ctx)
			if err != nil {
				return err
			}
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			rev, err := eng.Resolve(ctx, repo.URI, ref)
			if err != nil {
				return err
			}
			stmts, err := eng.Export(ctx, rev.URI)
			if err != nil {
				return err
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()
			for st := range stmts {
				fmt.Fprintln(out, triple.FormatLine(st))
			}
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch <file.nt>",
		Short: "Commit a file every time it is saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName, _ := cmd.Flags().GetString("branch")

			repo, err := currentRepo(cmd.Context())
			if err != nil {
				return err
			}
			w, err := watch.New(eng, watch.Options{
				RepositoryURI: repo.URI,
				Branch:        branchName,
				Path:          args[0],
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			defer w.Close()

			// Commit what is there before waiting for changes.
			if rev, err := w.Sync(cmd.Context()); err != nil {
				return err
			} else if rev != nil {
				fmt.Printf("Committed %s\n", engine.ShortID(rev.URI))
			}

			fmt.Printf("Watching %s on %s (Ctrl-C to stop)\n", args[0], branchName)
			return w.Run(cmd.Context())
		},
	}
	watchCmd.Flags().StringP("branch", "b", revision.MasterBranch, "Branch to commit on")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVarP(&repoName, "repo", "r", "", "Repository name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
}

// printConflicts lists the statements a failed merge could not reconcile.
func printConflicts(err error) {
	e, ok := vcerrors.As(err)
	if !ok || e.Type != vcerrors.ErrorTypeMergeConflict {
		return
	}
	conflicts, ok := e.Details.([]diff.Conflict)
	if !ok {
		return
	}
	red := color.New(color.FgRed).SprintFunc()
	for _, c := range conflicts {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("conflict:"), c)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
