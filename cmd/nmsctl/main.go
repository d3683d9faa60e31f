// nmsctl runs engine operations from the command line: migration bundle
// export and import, unit packaging, bulk deletion and token minting.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"nms-backend/internal/app"
	"nms-backend/internal/auth"
	"nms-backend/internal/config"
	"nms-backend/internal/logging"
	"nms-backend/internal/migration"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app.App, args []string) error
}

var commands = []command{
	{"export", "export entity types to a migration bundle", runExport},
	{"import", "import a migration bundle", runImport},
	{"export-unit", "package one instance and its unit graph", runExportUnit},
	{"import-unit", "import a packaged unit archive", runImportUnit},
	{"delete-all", "delete every instance of the given types", runDeleteAll},
	{"list", "list stored migration bundles", runList},
	{"token", "mint an access token for a user", runToken},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nmsctl [--config app.yaml] <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", c.name, c.summary)
	}
}

func run(args []string) error {
	var configPath string
	global := pflag.NewFlagSet("nmsctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.StringVar(&configPath, "config", "", "path to app.yaml")
	global.Usage = usage
	if err := global.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage()
		return fmt.Errorf("no command given")
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == rest[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return cmd.run(ctx, a, rest[1:])
}

func splitTypes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runExport(ctx context.Context, a *app.App, args []string) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	var req migration.ExportRequest
	var types string
	fs.StringVar(&req.Name, "name", "", "bundle name")
	fs.StringVar(&types, "types", "", "comma-separated entity types")
	fs.BoolVar(&req.ExportPrivateProperties, "private", false, "include private properties in clear text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req.Types = splitTypes(types)
	path, err := a.Migrations.Export(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runImport(ctx context.Context, a *app.App, args []string) error {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	var req migration.ImportRequest
	var types string
	fs.StringVar(&req.Name, "name", "", "bundle name")
	fs.StringVar(&types, "types", "", "comma-separated entity types (default: all types in the bundle)")
	fs.BoolVar(&req.EmptyDatabaseBeforeImport, "empty", false, "delete existing instances of the types first")
	fs.BoolVar(&req.SkipModelUpdate, "skip-model-update", false, "skip derived state and access recomputation")
	fs.BoolVar(&req.SkipPoolUpdate, "skip-pool-update", false, "skip grouping recomputation")
	fs.BoolVar(&req.UpdatePools, "update-pools", false, "recompute groupings over the imported types")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req.Types = splitTypes(types)
	status, err := a.Migrations.Import(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}

func runExportUnit(ctx context.Context, a *app.App, args []string) error {
	fs := pflag.NewFlagSet("export-unit", pflag.ContinueOnError)
	entity := fs.String("type", "workflow", "entity type of the root instance")
	name := fs.String("name", "", "name of the root instance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := a.Migrations.ExportUnit(ctx, *entity, *name)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runImportUnit(ctx context.Context, a *app.App, args []string) error {
	fs := pflag.NewFlagSet("import-unit", pflag.ContinueOnError)
	file := fs.String("file", "", "path to a unit archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	name := strings.TrimSuffix(filepath.Base(*file), ".tgz")
	status, err := a.Migrations.ImportUnitFrom(ctx, name, f)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}

func runDeleteAll(ctx context.Context, a *app.App, args []string) error {
	fs := pflag.NewFlagSet("delete-all", pflag.ContinueOnError)
	types := fs.String("types", "", "comma-separated entity types")
	if err := fs.Parse(args); err != nil {
		return err
	}
	list := splitTypes(*types)
	if len(list) == 0 {
		return fmt.Errorf("--types is required")
	}
	return a.Engine.DeleteAll(ctx, list...)
}

func runList(ctx context.Context, a *app.App, _ []string) error {
	bundles, err := a.Migrations.ListBundles(ctx)
	if err != nil {
		return err
	}
	for _, b := range bundles {
		fmt.Printf("%-30s %10d  %s\n", b.Name, b.Size, b.Modified.Format(time.RFC3339))
	}
	return nil
}

func runToken(ctx context.Context, a *app.App, args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	user := fs.String("user", "", "user name")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.Engine.LoadPrincipal(ctx, *user); err != nil {
		return err
	}
	token, err := auth.GenerateAccessToken(*user, a.Config.JWTSecret, *ttl)
	if err != nil {
		return err
	}
	a.Log.Debugw("token issued", "user", *user)
	fmt.Println(token)
	return nil
}
