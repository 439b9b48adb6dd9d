/*
flowcheck captures the screens of a web application while you click through
it and replays the captured flows later to detect regressions.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/antchfx/jsonquery"
	"github.com/jakopako/flowcheck/internal/browser"
	"github.com/jakopako/flowcheck/internal/capture"
	"github.com/jakopako/flowcheck/internal/checkpoint"
	"github.com/jakopako/flowcheck/internal/config"
	"github.com/jakopako/flowcheck/internal/flow"
	"github.com/jakopako/flowcheck/internal/log"
	"github.com/jakopako/flowcheck/internal/output"
	"github.com/jakopako/flowcheck/internal/regression"
	"github.com/jakopako/flowcheck/internal/storage"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug' and store the live html of every tested screen."`

	Capture  CaptureCmd  `cmd:"" help:"Capture screens into a section while you drive the browser"`
	Test     TestCmd     `cmd:"" help:"Replay a section against the live site and report regressions"`
	List     ListCmd     `cmd:"" help:"List the captured sections"`
	Show     ShowCmd     `cmd:"" help:"Print the flow graph of a section"`
	Reparent ReparentCmd `cmd:"" help:"Move a screen and its descendants under another parent"`
	Delete   DeleteCmd   `cmd:"" help:"Delete a screen or a whole section"`
	Query    QueryCmd    `cmd:"" help:"Evaluate an xpath expression against a json artifact, eg. a report or apis.json"`
}

// configFlags are shared by all commands that need the configuration.
type configFlags struct {
	Config string `short:"c" default:"./flowcheck.yml" help:"The configuration file. Environment variables are used if it does not exist."`
	Root   string `short:"r" help:"The directory sections are stored in. Overrides capture.root_dir."`
}

func (cf *configFlags) load() (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if ok, _ := storage.PathExists(cf.Config); ok {
		c, err = config.NewConfigFromFile(cf.Config)
	} else {
		slog.Debug(fmt.Sprintf("config file %s not found, reading the environment only", cf.Config))
		c, err = config.NewConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if cf.Root != "" {
		c.Capture.RootDir = cf.Root
	}
	return c, nil
}

func (cf *configFlags) store() (*storage.Store, *config.Config, error) {
	c, err := cf.load()
	if err != nil {
		return nil, nil, err
	}
	return storage.New(c.Capture.RootDir), c, nil
}

type CaptureCmd struct {
	configFlags
	Section string `short:"s" help:"The section to capture into. An existing section is continued." required:""`
	URL     string `short:"u" long:"url" help:"The url to open. Overrides replay.base_url."`
}

func (cc *CaptureCmd) Run() error {
	store, c, err := cc.store()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if cc.URL != "" {
		c.Replay.BaseURL = cc.URL
	}
	// the operator drives the browser by hand
	c.Browser.Headless = false
	c.Browser.RecordActions = true
	c.Browser.FlushInterval = c.Capture.FlushInterval

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mgr := capture.NewManager(store, func(ctx context.Context) (browser.Driver, error) {
		return browser.NewDriver(ctx, &c.Browser)
	})
	s, err := mgr.Start(ctx, c.CaptureOptions(cc.Section))
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if err := captureInteractively(ctx, s, os.Stdin, os.Stdout); err != nil {
		slog.Warn(fmt.Sprintf("%v", err))
	}
	info, err := mgr.Stop(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	slog.Info(fmt.Sprintf("section %s has %d screens with %d apis and %d actions", info.Section, info.ScreenCount, info.APICount, info.ActionCount))
	return nil
}

type TestCmd struct {
	configFlags
	Section    string `short:"s" help:"The section to test." required:""`
	URL        string `short:"u" long:"url" help:"The base url of the site under test. Overrides replay.base_url."`
	Stdout     bool   `short:"o" help:"If set to true the report will be written to stdout despite any other existing writer configurations."`
	Checkpoint string `short:"k" help:"How to ask the operator when a screen cannot be reached."`
}

func (tc *TestCmd) Run() error {
	store, c, err := tc.store()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if tc.URL != "" {
		c.Replay.BaseURL = tc.URL
	}
	if c.Replay.BaseURL == "" {
		return errors.New("a base url is needed, set replay.base_url or pass --url")
	}
	if tc.Stdout {
		c.Writer.Type = output.STDOUT_WRITER_TYPE
	}
	if tc.Checkpoint != "" {
		c.Replay.Checkpoint.Type = checkpoint.Type(tc.Checkpoint)
	}

	section := store.Section(tc.Section)
	if err := regression.Check(section); err != nil {
		slog.Error(fmt.Sprintf("section %s cannot be tested: %v", tc.Section, err))
		return err
	}
	writer, err := output.NewWriter(&c.Writer)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	driver, err := browser.NewDriver(ctx, &c.Browser)
	if err != nil {
		slog.Error(fmt.Sprintf("failed to open browser: %v", err))
		return err
	}
	defer driver.Close()
	cp, err := c.NewCheckpoint(ctx, driver)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	rep, runErr := regression.NewRunner(section, driver, cp, c.RegressionOptions()).Run(ctx)
	if rep == nil {
		slog.Error(fmt.Sprintf("%v", runErr))
		return runErr
	}
	if runErr != nil {
		slog.Warn(fmt.Sprintf("test run interrupted: %v", runErr))
	}
	if err := writer.Write(rep); err != nil {
		slog.Error(fmt.Sprintf("failed to write the report: %v", err))
		return err
	}
	slog.Info(fmt.Sprintf("test run %s finished: %s", rep.TestRunID, rep.Summary.Status))
	return nil
}

type ListCmd struct {
	configFlags
}

func (lc *ListCmd) Run() error {
	store, _, err := lc.store()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	names, err := store.Sections()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Section", "Screens", "Apis", "Actions", "Captured"})
	for _, name := range names {
		sec := store.Section(name)
		g, err := sec.LoadGraph()
		if err != nil {
			table.Rich([]string{name, "-", "-", "-", err.Error()}, []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgRedColor}, {}, {}, {}, {tablewriter.Normal, tablewriter.FgRedColor}})
			continue
		}
		apis, acts := 0, 0
		for _, e := range g.Edges {
			apis += e.APICount
			acts += e.ActionCount
		}
		captured := "in progress"
		if info, err := sec.LoadSession(); err == nil {
			captured = info.StoppedAt.Format("2006-01-02 15:04")
		}
		table.Append([]string{name, strconv.Itoa(len(g.Nodes) - 1), strconv.Itoa(apis), strconv.Itoa(acts), captured})
	}
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
	table.SetBorder(false)
	table.Render()
	return nil
}

type ShowCmd struct {
	configFlags
	Section string `short:"s" help:"The section to show." required:""`
}

func (sc *ShowCmd) Run() error {
	store, _, err := sc.store()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	g, err := store.Section(sc.Section).LoadGraph()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	yamlData, err := yaml.Marshal(buildTree(g, flow.StartID))
	if err != nil {
		slog.Error(fmt.Sprintf("error while marshalling. %v", err))
		return err
	}
	fmt.Print(string(yamlData))
	if b := g.Branches(); len(b) > 0 {
		fmt.Printf("# only the first child is tested for %s\n", strings.Join(b, ", "))
	}
	return nil
}

type ReparentCmd struct {
	configFlags
	Section string `short:"s" help:"The section containing the screen." required:""`
	Screen  string `arg:"" help:"The id of the screen to move."`
	Parent  string `arg:"" help:"The id of the new parent."`
}

func (rc *ReparentCmd) Run() error {
	store, _, err := rc.store()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	g, err := store.Section(rc.Section).ReparentScreen(rc.Screen, rc.Parent)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	n, _ := g.Node(rc.Screen)
	slog.Info(fmt.Sprintf("moved screen %s to %s", rc.Screen, n.NestedPath))
	return nil
}

type DeleteCmd struct {
	configFlags
	Section string `short:"s" help:"The section to delete from." required:""`
	Screen  string `arg:"" optional:"" help:"The id of the screen to delete. Its children are moved to its parent. If empty the whole section is deleted."`
}

func (dc *DeleteCmd) Run() error {
	store, _, err := dc.store()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if dc.Screen == "" {
		if err := store.RemoveSection(dc.Section); err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			return err
		}
		slog.Info(fmt.Sprintf("deleted section %s", dc.Section))
		return nil
	}
	if _, err := store.Section(dc.Section).DeleteScreen(dc.Screen); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	slog.Info(fmt.Sprintf("deleted screen %s", dc.Screen))
	return nil
}

type QueryCmd struct {
	File string `arg:"" help:"The json file to query."`
	Expr string `arg:"" help:"The xpath expression, eg. '//screens/*[status=\"failed\"]/name'."`
}

func (qc *QueryCmd) Run() error {
	results, err := query(qc.File, qc.Expr)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}

func query(file, expr string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := jsonquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	nodes, err := jsonquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	results := make([]string, 0, len(nodes))
	for _, n := range nodes {
		results = append(results, n.InnerText())
	}
	return results, nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	log.InitializeDefaultLogger()

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
