package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program runs the bridge under the OS service manager.
type program struct {
	configPath string
	cancel     context.CancelFunc
	done       chan error
}

// Start must not block.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- run(ctx, p.configPath)
	}()
	return nil
}

// Stop cancels run and waits for its deferred shutdown.
func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func newServiceCmd(configPath *string) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install, control or run the bridge as a system service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if action != "" && action != "run" && !slices.Contains(service.ControlAction[:], action) {
				return fmt.Errorf("unknown service action %q (want run, %s)", action, strings.Join(service.ControlAction[:], ", "))
			}

			path, err := filepath.Abs(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("resolving config path: %w", err)
			}

			prg := &program{configPath: path}
			svc, err := service.New(prg, serviceConfig(path))
			if err != nil {
				return fmt.Errorf("creating service: %w", err)
			}

			if action == "" || action == "run" {
				return svc.Run()
			}
			if err := service.Control(svc, action); err != nil {
				return fmt.Errorf("service %s: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service action '%s' completed successfully.\n", action)
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "run, install, uninstall, start, stop or restart")
	return cmd
}

// serviceConfig makes the installed service re-enter through
// "service --action run" with an absolute config path.
func serviceConfig(configPath string) *service.Config {
	cfg := &service.Config{
		Name:        "graylogic-karotz",
		DisplayName: "Gray Logic Karotz Bridge",
		Description: "Bridges OpenKarotz rabbits to the Gray Logic MQTT bus",
		Arguments:   []string{"service", "--action", "run", "--config", configPath},
	}
	if wd, err := os.Getwd(); err == nil {
		cfg.WorkingDirectory = wd
	}
	return cfg
}
