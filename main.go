package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
	configx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/config"
	logx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/logger"
	_ "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/logger/autoload"
)

const maxContentWidth = 80

var rootCmd = &cobra.Command{
	Use:   "kumak",
	Short: "Business consultation orchestrator",
	Long: `kumak routes business-owner messages through a planner that picks capabilities
(business info extraction, market research, knowledge search, completeness check,
consultation, action plans) and keeps one persistent conversation thread per key.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configx.SetEnvFile(viper.GetString("env"))
		logCfg, err := configx.New[logx.Config]("LOG")
		if err != nil {
			return err
		}
		logx.Init(*logCfg)
		return nil
	},
}

func main() {
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("env", "", "path to .env file")
	rootCmd.PersistentFlags().StringP("thread", "t", "local", "conversation thread key")
	_ = viper.BindPFlag("env", rootCmd.PersistentFlags().Lookup("env"))
	_ = viper.BindPFlag("thread", rootCmd.PersistentFlags().Lookup("thread"))
}

func registerCommands() {
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(migrateCmd())
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation on one thread (/reset, /history, /exit)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				thread := viper.GetString("thread")
				fmt.Printf("thread %s, type /exit to quit\n", thread)
				scanner := bufio.NewScanner(os.Stdin)
				for {
					fmt.Print("> ")
					if !scanner.Scan() {
						return scanner.Err()
					}
					line := strings.TrimSpace(scanner.Text())
					switch line {
					case "":
						continue
					case "/exit", "/quit":
						return nil
					case "/reset":
						v, err := a.orchestrator.Reset(ctx, thread)
						if err != nil {
							return err
						}
						fmt.Printf("thread reset (version %d)\n", v)
						continue
					case "/history":
						if err := printHistory(ctx, a, thread, 20); err != nil {
							return err
						}
						continue
					}

					reply, version, err := a.orchestrator.Process(ctx, thread, line)
					if errors.Is(err, contractx.ErrTransient) {
						fmt.Println("the conversation changed while answering, please send that again")
						continue
					}
					if err != nil {
						return err
					}
					fmt.Printf("%s\n[v%d]\n", reply, version)
				}
			})
		},
	}
}

func sendCmd() *cobra.Command {
	var (
		message string
		reset   bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Process one message and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !reset && strings.TrimSpace(message) == "" {
				return fmt.Errorf("--message required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				thread := viper.GetString("thread")
				if reset {
					v, err := a.orchestrator.Reset(ctx, thread)
					if err != nil {
						return err
					}
					fmt.Printf("thread %s reset (version %d)\n", thread, v)
					if strings.TrimSpace(message) == "" {
						return nil
					}
				}
				reply, version, err := a.orchestrator.Process(ctx, thread, message)
				if err != nil {
					return err
				}
				fmt.Println(reply)
				log.Debug().Str("thread_key", thread).Int64("version", version).Msg("reply sent")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the thread before sending")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show transcript, business profile and recent checkpoints of a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return printHistory(ctx, a, viper.GetString("thread"), limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of checkpoints to show")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create database schemas for the configured store and knowledge index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printHistory(ctx context.Context, a *app, thread string, limit int) error {
	th, cps, err := a.orchestrator.History(ctx, thread, limit)
	if errors.Is(err, statex.ErrStateNotFound) {
		fmt.Printf("thread %s has no history\n", thread)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("thread %s version %d complete=%t\n", th.ThreadKey, th.Version, th.IsComplete())

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Role", "Content", "At"})
	for i, turn := range th.Transcript {
		content := turn.Content
		if turn.Call != nil {
			content = fmt.Sprintf("[%s %s %dms] %s", turn.Call.Capability, turn.Call.SideEffect, turn.Call.Latency.Milliseconds(), content)
		}
		tw.AppendRow(table.Row{i + 1, turn.Role, truncate(content), turn.At.Format("2006-01-02 15:04:05")})
	}
	tw.Render()

	pw := table.NewWriter()
	pw.SetOutputMirror(os.Stdout)
	pw.AppendHeader(table.Row{"Attribute", "Value"})
	for _, k := range th.Profile.Keys() {
		pw.AppendRow(table.Row{k, truncate(th.Profile[k])})
	}
	if missing := statex.MissingAttributes(th.Profile); len(missing) > 0 {
		pw.AppendFooter(table.Row{"missing", strings.Join(missing, ", ")})
	}
	pw.Render()

	if len(cps) == 0 {
		return nil
	}
	cw := table.NewWriter()
	cw.SetOutputMirror(os.Stdout)
	cw.AppendHeader(table.Row{"Version", "Iter", "Kind", "Decision", "Note"})
	for _, cp := range cps {
		decision := string(cp.Decision.Kind)
		if cp.Decision.Capability != "" {
			decision += " " + cp.Decision.Capability
		}
		cw.AppendRow(table.Row{cp.Version, cp.Iteration, cp.Kind, decision, truncate(cp.Note)})
	}
	cw.Render()
	return nil
}

func truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxContentWidth {
		return string(r[:maxContentWidth-3]) + "..."
	}
	return s
}
