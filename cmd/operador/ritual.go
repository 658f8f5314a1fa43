package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"operador/internal/app"
	"operador/internal/ritual"
)

var errStdinClosed = errors.New("stdin closed before the ritual finished")

func ritualCmd() *cobra.Command {
	var number, actionSeconds int
	var notes string
	cmd := &cobra.Command{
		Use:   "ritual",
		Short: "Run today's cut, action and record sequence",
		Long: `ritual walks through three phases:
  cut     press enter when the distractions are gone
  action  the countdown runs; "p" pauses or resumes, "s" skips to record
  record  answer s (done) or n (not done)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := missionArg(ctx, rt, number)
				if err != nil {
					return err
				}
				duration := rt.Config.ActionDuration()
				if actionSeconds > 0 {
					duration = time.Duration(actionSeconds) * time.Second
				}
				lines := readLines(ctx)
				phases := make(chan ritual.Phase, 4)
				s := ritual.New(rt.Engine, m.UserID, m.ID, ritual.Options{
					ActionDuration: duration,
					RecordNotDone:  rt.Config.Ritual.RecordNotDone,
					OnPhase:        func(p ritual.Phase) { phases <- p },
				})

				fmt.Printf("Missão %d: %s\n", m.Number, m.Title)
				fmt.Println("CORTE: feche abas, silencie o telefone. Enter para começar.")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case _, ok := <-lines:
					if !ok {
						return errStdinClosed
					}
				}
				if err := s.BeginAction(); err != nil {
					return err
				}
				if err := s.Start(); err != nil {
					return err
				}
				fmt.Printf("AÇÃO: %s. %s\n", m.MinimalAction, formatRemaining(s.Remaining()))

				runCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() { _ = s.Run(runCtx, time.Second) }()

				status := time.NewTicker(time.Minute)
				defer status.Stop()
			action:
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case p := <-phases:
						if p == ritual.PhaseRecord {
							break action
						}
					case <-status.C:
						if s.Running() {
							fmt.Println(formatRemaining(s.Remaining()))
						}
					case line, ok := <-lines:
						if !ok {
							lines = nil
							continue
						}
						switch strings.ToLower(strings.TrimSpace(line)) {
						case "p":
							if err := s.Toggle(); err != nil {
								return err
							}
							if s.Running() {
								fmt.Println("retomado,", formatRemaining(s.Remaining()))
							} else {
								fmt.Println("pausado,", formatRemaining(s.Remaining()))
							}
						case "s":
							if err := s.SkipToRecord(); err != nil {
								return err
							}
						}
					}
				}
				cancel()

				fmt.Print("REGISTRO: você executou a ação mínima? [s/n] ")
				for {
					var line string
					var ok bool
					select {
					case <-ctx.Done():
						return ctx.Err()
					case line, ok = <-lines:
					}
					if !ok {
						return errStdinClosed
					}
					var outcome ritual.Outcome
					switch strings.ToLower(strings.TrimSpace(line)) {
					case "s", "sim", "y":
						outcome = ritual.Done
					case "n", "nao", "não":
						outcome = ritual.NotDone
					default:
						fmt.Print("responda s ou n: ")
						continue
					}
					res, err := s.Resolve(ctx, outcome, notes)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(res)
					}
					switch {
					case !res.Recorded:
						fmt.Println("Nada registrado.")
					case res.Progress.Completed:
						fmt.Printf("Registrado. Sequência: %d/%d\n", res.Progress.ConsecutiveDays, m.RequiredStreak)
					default:
						fmt.Println("Registrado. Sequência zerada.")
					}
					return nil
				}
			})
		},
	}
	cmd.Flags().IntVar(&number, "mission", 0, "mission number (active by default)")
	cmd.Flags().IntVar(&actionSeconds, "action-seconds", 0, "override the action countdown")
	cmd.Flags().StringVar(&notes, "notes", "", "notes stored with the check-in")
	return cmd
}

// readLines feeds stdin lines to a channel until ctx ends or stdin closes.
func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d restantes", int(d.Minutes()), int(d.Seconds())%60)
}
