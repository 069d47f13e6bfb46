package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/integrii/flaggy"

	"github.com/tuti-cli/tuti/pkg/commands"
	"github.com/tuti-cli/tuti/pkg/config"
	"github.com/tuti-cli/tuti/pkg/infra"
	"github.com/tuti-cli/tuti/pkg/utils"
)

var version = "dev"

type app struct {
	Config    *config.AppConfig
	Compose   *commands.Compose
	State     *commands.StateManager
	Infra     *infra.Manager
	Ports     *commands.PortConflictDetector
	OSCommand *commands.OSCommand

	Closers []io.Closer
}

func main() {
	debug := false
	projectDir := "."
	service := ""
	follow := false

	flaggy.SetName("tuti")
	flaggy.SetDescription("local container development environments behind one shared proxy")
	flaggy.SetVersion(version)
	flaggy.Bool(&debug, "d", "debug", "write a debug log")

	up := flaggy.NewSubcommand("up")
	up.Description = "start the project's stack (installing the shared proxy first if needed)"
	up.String(&projectDir, "p", "path", "project directory")

	down := flaggy.NewSubcommand("down")
	down.Description = "stop the project's stack"
	down.String(&projectDir, "p", "path", "project directory")

	restart := flaggy.NewSubcommand("restart")
	restart.Description = "restart the stack, or one service"
	restart.String(&projectDir, "p", "path", "project directory")
	restart.String(&service, "s", "service", "service to restart")

	status := flaggy.NewSubcommand("status")
	status.Description = "show the stack's services"
	status.String(&projectDir, "p", "path", "project directory")

	logs := flaggy.NewSubcommand("logs")
	logs.Description = "show stack logs"
	logs.String(&projectDir, "p", "path", "project directory")
	logs.String(&service, "s", "service", "service to show logs for")
	logs.Bool(&follow, "f", "follow", "follow log output")

	proxy := flaggy.NewSubcommand("proxy")
	proxy.Description = "manage the shared reverse proxy"
	proxyInstall := flaggy.NewSubcommand("install")
	proxyStart := flaggy.NewSubcommand("start")
	proxyStop := flaggy.NewSubcommand("stop")
	proxyStatus := flaggy.NewSubcommand("status")
	proxy.AttachSubcommand(proxyInstall, 1)
	proxy.AttachSubcommand(proxyStart, 1)
	proxy.AttachSubcommand(proxyStop, 1)
	proxy.AttachSubcommand(proxyStatus, 1)

	flaggy.AttachSubcommand(up, 1)
	flaggy.AttachSubcommand(down, 1)
	flaggy.AttachSubcommand(restart, 1)
	flaggy.AttachSubcommand(status, 1)
	flaggy.AttachSubcommand(logs, 1)
	flaggy.AttachSubcommand(proxy, 1)
	flaggy.Parse()

	a, err := newApp(debug)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.Config.UserConfig.Timeouts.LifecycleSeconds)*time.Second)
	defer cancel()

	switch {
	case up.Used:
		err = a.up(ctx, projectDir)
	case down.Used:
		err = a.down(ctx, projectDir)
	case restart.Used:
		err = a.restart(ctx, projectDir, service)
	case status.Used:
		err = a.status(ctx, projectDir)
	case logs.Used:
		err = a.logs(ctx, projectDir, service, follow)
	case proxy.Used:
		err = a.proxy(ctx, proxyInstall.Used, proxyStart.Used, proxyStop.Used, proxyStatus.Used)
	default:
		flaggy.ShowHelpAndExit("")
	}

	if closeErr := utils.CloseMany(a.Closers); err == nil {
		err = closeErr
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, utils.ColoredString("error: "+err.Error(), color.FgRed))
		os.Exit(1)
	}
}

func newApp(debug bool) (*app, error) {
	appConfig, err := config.NewAppConfig("tuti", version, debug)
	if err != nil {
		return nil, err
	}

	logger := appConfig.NewLogger()
	osCommand := commands.NewOSCommand(logger, appConfig)

	dockerClient, err := commands.NewDockerClient(logger)
	if err != nil {
		return nil, err
	}

	compose := commands.NewCompose(logger, appConfig, osCommand)

	return &app{
		Config:    appConfig,
		Compose:   compose,
		State:     commands.NewStateManager(logger, compose),
		Infra:     infra.NewManager(logger, appConfig, compose, dockerClient, osCommand),
		Ports:     commands.NewPortConflictDetector(logger, appConfig, osCommand),
		OSCommand: osCommand,
		Closers:   []io.Closer{dockerClient},
	}, nil
}

func (a *app) up(ctx context.Context, projectDir string) error {
	project, err := commands.LoadProject(projectDir)
	if err != nil {
		return err
	}

	// Diagnostic only: conflicts are reported, never block the start.
	if running, _ := a.Infra.IsRunning(ctx); !running {
		proxyConfig := a.Config.UserConfig.Proxy
		conflicts := a.Ports.CheckPortConflicts(ctx, map[string]int{
			"proxy-http":  proxyConfig.HTTPPort,
			"proxy-https": proxyConfig.HTTPSPort,
		})
		for port, conflict := range conflicts {
			fmt.Fprintln(os.Stderr, utils.ColoredString(
				fmt.Sprintf("warning: port %d wanted by %s is in use by %s", port, conflict.Service, conflict.UsedBy),
				color.FgYellow))
		}
	}

	if err := a.Infra.EnsureReady(ctx); err != nil {
		return err
	}

	if err := a.State.Start(ctx, project); err != nil {
		return err
	}

	fmt.Printf("%s %s is up\n", statusIcon(string(commands.StateRunning)), project.Config.Name)
	return nil
}

func (a *app) down(ctx context.Context, projectDir string) error {
	project, err := commands.LoadProject(projectDir)
	if err != nil {
		return err
	}

	if err := a.State.SyncState(ctx, project); err != nil {
		return err
	}
	if err := a.State.Stop(ctx, project); err != nil {
		return err
	}

	fmt.Printf("%s %s is stopped\n", statusIcon(string(commands.StateStopped)), project.Config.Name)
	return nil
}

func (a *app) restart(ctx context.Context, projectDir, service string) error {
	project, err := commands.LoadProject(projectDir)
	if err != nil {
		return err
	}
	return a.Compose.Restart(ctx, project, service)
}

func (a *app) status(ctx context.Context, projectDir string) error {
	project, err := commands.LoadProject(projectDir)
	if err != nil {
		return err
	}

	statuses, err := a.Compose.Status(ctx, project)
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		fmt.Printf("%s no containers for %s\n", statusIcon("stopped"), project.Config.Name)
		return nil
	}

	for _, s := range statuses {
		ports := strings.Join(s.Ports, ", ")
		fmt.Printf("%s %s %s (%s) %s\n", statusIcon(s.Status), utils.WithPadding(s.Name, 16), s.Status, s.Health, ports)
	}
	return nil
}

func (a *app) logs(ctx context.Context, projectDir, service string, follow bool) error {
	project, err := commands.LoadProject(projectDir)
	if err != nil {
		return err
	}
	// Followed logs block until interrupted; the bounded ctx only covers
	// compose command resolution, not the stream itself. An interrupt takes
	// down the whole log pipeline's process group.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		_ = a.OSCommand.KillStreaming()
	}()

	return a.Compose.Logs(ctx, project, service, follow, os.Stdout)
}

func (a *app) proxy(ctx context.Context, install, start, stop, showStatus bool) error {
	switch {
	case install:
		return a.Infra.Install(ctx)
	case start:
		return a.Infra.Start(ctx)
	case stop:
		return a.Infra.Stop(ctx)
	case showStatus:
		status, err := a.Infra.GetStatus(ctx)
		if err != nil {
			return err
		}
		for _, name := range []string{"proxy", "network"} {
			component := status[name]
			fmt.Printf("%s %s %s\n", statusIcon(string(component.Health)), utils.WithPadding(name, 10), component.Health)
		}
		return nil
	default:
		flaggy.ShowHelpAndExit("")
		return nil
	}
}

func statusIcon(status string) string {
	var icon string
	var c color.Attribute

	switch status {
	case "running", "healthy":
		icon = "●"
		c = color.FgGreen
	case "stopped", "exited":
		icon = "○"
		c = color.FgYellow
	case "not_installed", "missing":
		icon = "○"
		c = color.FgRed
	default:
		icon = "?"
		c = color.FgWhite
	}

	return utils.ColoredString(icon, c)
}
