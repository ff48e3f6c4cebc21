package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/dustin/go-humanize"
	"github.com/goombaio/namegenerator"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var createCmd = &cobra.Command{
	Use:   "create <rootfs> -- <argv...>",
	Short: "Create a container from a rootfs and a command",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().String("id", "", "Container id (a name is generated if omitted)")
	createCmd.Flags().StringArray("env", nil, "Environment variable KEY=VALUE (repeatable)")
	createCmd.Flags().String("cwd", "", "Working directory inside the container")
	createCmd.Flags().Int64("memory", 0, "Memory limit in bytes (0 = unbounded)")
	createCmd.Flags().Float64("cpu", 0, "CPU share (0 = unbounded)")
	createCmd.Flags().Bool("tty", false, "Allocate a TTY for the container's stdio")
}

func runCreate(cmd *cobra.Command, args []string) error {
	rootfs := args[0]
	argv := args[1:]
	if len(argv) == 0 {
		return fmt.Errorf("create requires a command after the rootfs, e.g. create /path -- /bin/sh")
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = namegenerator.NewNameGenerator(defaultNameSeed()).Generate()
	}
	env, _ := cmd.Flags().GetStringArray("env")
	cwd, _ := cmd.Flags().GetString("cwd")
	memory, _ := cmd.Flags().GetInt64("memory")
	cpu, _ := cmd.Flags().GetFloat64("cpu")
	tty, _ := cmd.Flags().GetBool("tty")
	if !cmd.Flags().Changed("tty") {
		tty = term.IsTerminal(int(os.Stdin.Fd()))
	}

	cfg := model.ContainerConfig{
		ID:         id,
		Rootfs:     rootfs,
		Argv:       argv,
		Env:        env,
		WorkingDir: cwd,
		Stdio:      model.StdioConfig{TTY: tty},
	}
	if memory > 0 {
		cfg.Resources.Memory = &memory
	}
	if cpu > 0 {
		cfg.Resources.CPU = &cpu
	}

	return withClient(cmd, func(ctx context.Context, c *shimClient) error {
		createdID, err := c.facade.Create(ctx, cfg)
		if err != nil {
			return err
		}
		fmt.Println(createdID)
		return nil
	})
}

var startCmd = &cobra.Command{
	Use:   "start <id> [id...]",
	Short: "Start one or more created containers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			return fanOut(ctx, args, func(ctx context.Context, id string) error {
				return c.facade.Start(ctx, id)
			})
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <id> [id...]",
	Short: "Stop one or more running containers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			return fanOut(ctx, args, func(ctx context.Context, id string) error {
				return c.facade.Stop(ctx, id)
			})
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id> [id...]",
	Short: "Delete one or more stopped containers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			return fanOut(ctx, args, func(ctx context.Context, id string) error {
				if force {
					return c.facade.ForceDelete(ctx, id)
				}
				return c.facade.Delete(ctx, id)
			})
		})
	},
}

func init() {
	deleteCmd.Flags().Bool("force", false, "Stop the container first if it is still running")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		orphaned, _ := cmd.Flags().GetBool("orphaned")
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			var records []model.ContainerRecord
			var err error
			if orphaned {
				records, err = c.facade.ListOrphaned(ctx)
			} else {
				records, err = c.facade.List(ctx)
			}
			if err != nil {
				return err
			}
			printContainerTable(records)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().Bool("orphaned", false, "Only list stopped containers that were never deleted")
}

func printContainerTable(records []model.ContainerRecord) {
	fmt.Printf("%-24s %-10s %s\n", "ID", "STATUS", "PID")
	for _, r := range records {
		pid := "-"
		if r.Pid != nil {
			pid = fmt.Sprintf("%d", *r.Pid)
		}
		fmt.Printf("%-24s %-10s %s\n", r.ID, r.Status, pid)
	}
}

var logsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Fetch a container's captured stdout/stderr",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		since, _ := cmd.Flags().GetDuration("since")
		timestamps, _ := cmd.Flags().GetBool("timestamps")

		opts := model.LogOptions{Tail: tail, Timestamps: timestamps}
		if since > 0 {
			opts.Since = time.Now().Add(-since).Unix()
		}

		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			rec, err := c.facade.Logs(ctx, args[0], opts)
			if err != nil {
				return err
			}
			if rec.Stdout != "" {
				fmt.Fprint(os.Stdout, rec.Stdout)
			}
			if rec.Stderr != "" {
				fmt.Fprint(os.Stderr, rec.Stderr)
			}
			return nil
		})
	},
}

func init() {
	logsCmd.Flags().Int("tail", 0, "Only show the last N lines (0 = all)")
	logsCmd.Flags().Duration("since", 0, "Only show logs newer than this duration ago")
	logsCmd.Flags().Bool("timestamps", false, "Prefix each line with its timestamp")
}

var execCmd = &cobra.Command{
	Use:   "exec <id> -- <argv...>",
	Short: "Run a command inside a running container and wait for it to exit",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		argv := args[1:]
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			exitCode, stdout, stderr, err := c.facade.Exec(ctx, id, argv)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, stdout)
			fmt.Fprint(os.Stderr, stderr)
			if exitCode != 0 {
				os.Exit(int(exitCode))
			}
			return nil
		})
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics [id]",
	Short: "Show resource usage for one container, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			if len(args) == 1 {
				m, err := c.facade.Metrics(ctx, args[0])
				if err != nil {
					return err
				}
				printMetricsRow(m)
				return nil
			}
			all, err := c.facade.AllMetrics(ctx)
			if err != nil {
				return err
			}
			for _, m := range all {
				printMetricsRow(m)
			}
			return nil
		})
	},
}

func printMetricsRow(m model.MetricsRecord) {
	fmt.Printf("%-24s cpu=%.1f%% mem=%s/%s pids=%d\n",
		m.ID,
		m.CPU.Percent,
		humanize.Bytes(m.Memory.UsageBytes),
		humanize.Bytes(m.Memory.LimitBytes),
		m.Pids.Current,
	)
}

var healthCmd = &cobra.Command{
	Use:   "health <id>",
	Short: "Show the current health probe state for a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			h, err := c.facade.Health(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s (failing streak: %d)\n", h.ID, h.State, h.FailingStreak)
			if h.LastOutput != "" {
				fmt.Println(strings.TrimRight(h.LastOutput, "\n"))
			}
			return nil
		})
	},
}

// withClient builds a short-lived shimClient, runs fn, and always tears
// the client down afterwards. A shimerr NotFound error exits the process
// with status 2 so scripts can branch on it; every other error is returned
// to the caller unchanged.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *shimClient) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := runtimeConfig(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	client := newShimClient(ctx, cfg)
	defer client.Close(ctx)
	logPhase(client)

	err := fn(ctx, client)
	if err == nil {
		return nil
	}
	if kind, ok := shimerr.KindOf(err); ok && kind == shimerr.KindNotFound {
		os.Exit(2)
	}
	return err
}

func defaultNameSeed() int64 {
	return time.Now().UTC().UnixNano()
}
