package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/edvin/pgbackup/internal/backupctl"
	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/platform"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	profile, err := backupctl.LoadProfile(envOr("BACKUPCTL_CONFIG", backupctl.DefaultProfilePath()))
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	apiURL := fs.String("api", envOr("BACKUPCTL_API_URL", or(profile.APIURL, backupctl.DefaultAPIURL)), "Backup service base URL")
	apiKey := fs.String("key", envOr("BACKUPCTL_API_KEY", profile.APIKey), "API key")
	client := func() *backupctl.Client { return backupctl.NewClient(*apiURL, *apiKey) }

	switch cmd {
	case "dump":
		credential := fs.Int64("credential", 0, "Upload to the storage credential with this id")
		format := fs.String("format", "c", "pg_dump format (p, t or c)")
		all := fs.Bool("all", false, "Use pg_dumpall")
		wait := fs.Bool("wait", false, "Wait for the dump to finish")
		connID := positional(fs, args, "dump [flags] <connection-id>")

		opts := model.DumpOptions{Command: model.CommandPGDump, Format: *format}
		if *all {
			opts = model.DumpOptions{Command: model.CommandPGDumpAll}
		}
		var credID *int64
		if *credential > 0 {
			credID = credential
		}
		c := client()
		id, err := c.StartDump(ctx, connID, credID, opts)
		if err != nil {
			return err
		}
		fmt.Println(id)
		if *wait {
			return waitFor(ctx, c, id, false)
		}

	case "backups":
		limit := fs.Int("limit", 25, "Number of backups to show")
		connID := positional(fs, args, "backups [flags] <connection-id>")
		jobs, err := client().Jobs(ctx, connID, *limit)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			fmt.Println(backupctl.FormatJob(j))
		}

	case "status":
		id := positional(fs, args, "status <backup-id>")
		job, err := client().Job(ctx, id)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(job, "", "  ")
		fmt.Println(string(out))

	case "wait":
		restore := fs.Bool("restore", false, "Wait for the restore instead of the dump")
		id := positional(fs, args, "wait [-restore] <backup-id>")
		return waitFor(ctx, client(), id, *restore)

	case "restore":
		to := fs.String("to", "", "Target connection id (default: the backup's own)")
		newDB := fs.String("new-db", "", "Restore into a new database with this name")
		noClean := fs.Bool("no-clean", false, "Do not drop objects before recreating them")
		wait := fs.Bool("wait", false, "Wait for the restore to finish")
		id := positional(fs, args, "restore [flags] <backup-id>")

		c := client()
		job, err := c.Job(ctx, id)
		if err != nil {
			return err
		}
		if err := c.StartRestore(ctx, id, *to, restoreOptions(job.Options, *newDB, *noClean)); err != nil {
			return err
		}
		fmt.Printf("Restore of %s started\n", id)
		if *wait {
			return waitFor(ctx, c, id, true)
		}

	case "delete":
		force := fs.Bool("force", false, "Delete even if the job is still running")
		id := positional(fs, args, "delete [-force] <backup-id>")
		return client().DeleteJob(ctx, id, *force)

	case "download":
		out := fs.String("o", "", "Output file (required)")
		id := positional(fs, args, "download -o <file> <backup-id>")
		if *out == "" {
			return fmt.Errorf("-o flag is required")
		}
		n, err := client().Download(ctx, id, *out)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %s to %s\n", platform.Bytes(n), *out)

	case "push":
		ws := fs.Bool("ws", false, "Upload over a websocket")
		chunk := fs.Int("chunk", 1<<20, "Websocket chunk size in bytes")
		format := fs.String("format", "", "Dump format of the file (p for plain SQL, default custom)")
		newDB := fs.String("new-db", "", "Restore into a new database with this name")
		fs.Parse(args)
		if fs.NArg() < 2 {
			return fmt.Errorf("usage: backupctl push [flags] <connection-id> <file>")
		}
		opts := model.DefaultRestoreOptions()
		opts.NewDBName = *newDB
		if *format != "" {
			opts = restoreOptions(model.DumpOptions{Command: model.CommandPGDump, Format: *format}, *newDB, false)
		}

		c := client()
		var res *backupctl.PushResult
		var err error
		if *ws {
			res, err = c.PushWebSocket(ctx, fs.Arg(0), fs.Arg(1), opts, *chunk)
		} else {
			res, err = c.PushFile(ctx, fs.Arg(0), fs.Arg(1), opts)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s: sent %s\n", res.ID, platform.Bytes(res.Received))

	case "apply":
		file := fs.String("f", "", "Path to backup definition YAML file (required)")
		fs.Parse(args)
		if *file == "" {
			return fmt.Errorf("-f flag is required")
		}
		def, err := backupctl.LoadDefinition(*file)
		if err != nil {
			return err
		}
		if def.APIURL != "" {
			*apiURL = def.APIURL
		}
		if def.APIKey != "" {
			*apiKey = def.APIKey
		}
		if *apiKey == "" {
			return fmt.Errorf("no API key: set api_key in the definition or BACKUPCTL_API_KEY")
		}
		return client().Apply(ctx, def, os.Stdout)

	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

// restoreOptions picks the restore program matching how the backup was made.
func restoreOptions(dump model.DumpOptions, newDB string, noClean bool) model.RestoreOptions {
	opts := model.DefaultRestoreOptions()
	if dump.IsDumpAll() || dump.Format == "" || dump.Format == "p" {
		opts = model.RestoreOptions{Command: model.CommandPSQL}
	} else {
		opts.Format = dump.Format
		opts.Clean = !noClean
	}
	opts.NewDBName = newDB
	return opts
}

func waitFor(ctx context.Context, c *backupctl.Client, id string, restore bool) error {
	job, err := c.Wait(ctx, id, restore, 2*time.Second, func(p model.Progress) {
		if p.Total > 0 {
			fmt.Fprintf(os.Stderr, "\r%s / %s", platform.Bytes(p.Loaded), platform.Bytes(p.Total))
		} else {
			fmt.Fprintf(os.Stderr, "\r%s", platform.Bytes(p.Loaded))
		}
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Println(backupctl.FormatJob(*job))
	return nil
}

func positional(fs *flag.FlagSet, args []string, usage string) string {
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: backupctl "+usage)
		os.Exit(1)
	}
	return fs.Arg(0)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  backupctl dump [-credential id] [-format c] [-all] [-wait] <connection-id>
  backupctl backups [-limit n] <connection-id>
  backupctl status <backup-id>
  backupctl wait [-restore] <backup-id>
  backupctl restore [-to connection-id] [-new-db name] [-no-clean] [-wait] <backup-id>
  backupctl delete [-force] <backup-id>
  backupctl download -o <file> <backup-id>
  backupctl push [-ws] [-format p] [-new-db name] <connection-id> <file>
  backupctl apply -f <definition.yaml>

Common flags:
  -api string   Backup service base URL (env BACKUPCTL_API_URL, default http://localhost:8090)
  -key string   API key (env BACKUPCTL_API_KEY)

Defaults for -api and -key are read from ~/.config/pgbackup/config.yaml
(override the path with BACKUPCTL_CONFIG).`)
}
