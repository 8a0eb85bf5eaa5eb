package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/XXueTu/site_orchestrator/application"
	"github.com/XXueTu/site_orchestrator/client"
	"github.com/XXueTu/site_orchestrator/config"
	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/interfaces/sdk"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Server.Port = port
			}

			rt, err := sdk.NewRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://localhost:%d/api/v1/ (storage: %s)\n", cfg.Server.Port, cfg.Storage.Driver)
			return rt.Serve(ctx)
		},
	}

	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides config)")
	return cmd
}

func newEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one candidate site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			var site agent.Site
			if err := readJSON(file, &site); err != nil {
				return err
			}

			var resp *application.EvaluationResponse
			err := withBackend(cmd,
				func(c *client.Client) (err error) {
					resp, err = c.EvaluateSite(cmd.Context(), site)
					return err
				},
				func(o *application.Orchestrator) error {
					resp = o.EvaluateSingle(cmd.Context(), site)
					return nil
				})
			if err != nil {
				return err
			}
			return report(cmd, resp, resp.Error)
		},
	}

	cmd.Flags().StringP("file", "f", "", "Site JSON file")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newOptimizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Select a charging network from candidate sites within a budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			budget, _ := cmd.Flags().GetFloat64("budget")
			target, _ := cmd.Flags().GetInt("target")
			objective, _ := cmd.Flags().GetString("objective")

			var sites []agent.Site
			if err := readJSON(file, &sites); err != nil {
				return err
			}
			req := application.OptimizationRequest{
				CandidateSites: sites,
				BudgetInr:      budget,
				TargetSites:    target,
				Objective:      objective,
			}

			var resp *application.OptimizationResponse
			err := withBackend(cmd,
				func(c *client.Client) (err error) {
					resp, err = c.OptimizeNetwork(cmd.Context(), req)
					return err
				},
				func(o *application.Orchestrator) error {
					resp = o.OptimizeSelection(cmd.Context(), req)
					return nil
				})
			if err != nil {
				return err
			}
			return report(cmd, resp, resp.Error)
		},
	}

	cmd.Flags().StringP("file", "f", "", "JSON array of candidate sites")
	cmd.Flags().Float64("budget", 0, "Total budget in INR")
	cmd.Flags().Int("target", 0, "Number of sites to select")
	cmd.Flags().String("objective", "", "maximize-roi, maximize-coverage, balanced or scripted")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("budget")
	cmd.MarkFlagRequired("target")
	return cmd
}

func newCrisisCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crisis",
		Short: "Analyze a city's permit bottlenecks and propose a resolution plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			city, _ := cmd.Flags().GetString("city")

			var sites []agent.Site
			if err := readJSON(file, &sites); err != nil {
				return err
			}
			req := application.CrisisRequest{City: city, Sites: sites}

			var resp *application.CrisisResponse
			err := withBackend(cmd,
				func(c *client.Client) (err error) {
					resp, err = c.HandlePermitCrisis(cmd.Context(), req)
					return err
				},
				func(o *application.Orchestrator) error {
					resp = o.HandlePermitCrisis(cmd.Context(), req)
					return nil
				})
			if err != nil {
				return err
			}
			return report(cmd, resp, resp.Error)
		},
	}

	cmd.Flags().StringP("file", "f", "", "JSON array of affected sites")
	cmd.Flags().String("city", "", "Affected city (defaults to the first site's city)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <workflow-id>",
		Short: "Show a workflow's status on a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := remoteClient(cmd)
			if err != nil {
				return err
			}
			snapshot, err := c.GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				if client.IsNotFound(err) {
					return fmt.Errorf("workflow %s not found", args[0])
				}
				return err
			}
			return printJSON(cmd, snapshot)
		},
	}
}

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent trace events on a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID, _ := cmd.Flags().GetString("correlation-id")
			limit, _ := cmd.Flags().GetInt("limit")

			c, err := remoteClient(cmd)
			if err != nil {
				return err
			}
			events, err := c.GetEvents(cmd.Context(), correlationID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range events {
				target := e.Target
				if target == "" {
					target = "-"
				}
				fmt.Fprintf(out, "%s  %-22s %-32s %s -> %s\n",
					e.Timestamp.Format("15:04:05.000"), e.Kind, e.CorrelationID, e.Source, target)
			}
			fmt.Fprintf(out, "%d events\n", len(events))
			return nil
		},
	}

	cmd.Flags().String("correlation-id", "", "Only events of this workflow")
	cmd.Flags().Int("limit", 50, "Maximum number of events")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func remoteClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		return nil, fmt.Errorf("--server is required")
	}
	return client.NewClient(server), nil
}

// withBackend 设置 --server 时调用远程服务，否则使用
// 按配置构建的进程内运行时
func withBackend(cmd *cobra.Command, remote func(*client.Client) error, local func(*application.Orchestrator) error) error {
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		return remote(client.NewClient(server))
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := sdk.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return local(rt.Orchestrator())
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// report 打印响应，工作流失败时返回非零退出
func report(cmd *cobra.Command, resp interface{}, failure *application.ErrorInfo) error {
	if err := printJSON(cmd, resp); err != nil {
		return err
	}
	if failure != nil {
		msg := failure.Message
		if failure.Step != "" {
			msg = fmt.Sprintf("step %s: %s", failure.Step, msg)
		}
		return fmt.Errorf("%s: %s", failure.Kind, strings.TrimSpace(msg))
	}
	return nil
}
