package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"semefo/internal/daemonrun"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/pipeline"
)

type outcomeView struct {
	Kind        string       `json:"kind"`
	State       string       `json:"state"`
	JobID       int64        `json:"jobId,omitempty"`
	Artifact    string       `json:"artifact,omitempty"`
	Size        int64        `json:"size,omitempty"`
	Removed     int          `json:"removedFragments"`
	Dispatched  bool         `json:"dispatched"`
	Reused      bool         `json:"reused,omitempty"`
	ErrorKind   string       `json:"errorKind,omitempty"`
	Error       string       `json:"error,omitempty"`
	Transitions []string     `json:"transitions"`
	Derived     *outcomeView `json:"derived,omitempty"`
}

func newOutcomeView(outcome pipeline.Outcome) outcomeView {
	view := outcomeView{
		Kind:       string(outcome.Kind),
		State:      string(outcome.State),
		JobID:      int64(outcome.JobID),
		Artifact:   outcome.Artifact.Path,
		Size:       outcome.Artifact.Size,
		Removed:    len(outcome.Removed),
		Dispatched: outcome.Dispatched,
		Reused:     outcome.Reused,
		ErrorKind:  outcome.ErrorKind(),
	}
	if outcome.Err != nil {
		view.Error = outcome.Err.Error()
	}
	for _, state := range outcome.Transitions {
		view.Transitions = append(view.Transitions, string(state))
	}
	if outcome.Derived != nil {
		derived := newOutcomeView(*outcome.Derived)
		view.Derived = &derived
	}
	return view
}

func (v outcomeView) rows() [][]string {
	detail := v.Artifact
	if v.Reused {
		detail += " (existing merge)"
	}
	if v.Error != "" {
		detail = v.Error
	}
	job := "-"
	if v.JobID > 0 {
		job = strconv.FormatInt(v.JobID, 10)
	}
	rows := [][]string{{
		v.Kind,
		formatStatusLabel(v.State),
		job,
		strconv.FormatInt(v.Size, 10),
		strconv.Itoa(v.Removed),
		yesNo(v.Dispatched),
		detail,
	}}
	if v.Derived != nil {
		rows = append(rows, v.Derived.rows()...)
	}
	return rows
}

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var (
		expediente string
		sessionID  int64
		kindName   string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble one session kind in the foreground",
		Long: "Runs the assembly pipeline for one (expediente, session, kind) without the daemon.\n" +
			"The run reports to the job ledger and dispatches transcription work exactly as a queued task would.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session := media.Session{Expediente: strings.TrimSpace(expediente), ID: sessionID}
			if err := session.Validate(); err != nil {
				return err
			}
			kind, err := media.ParseKind(kindName)
			if err != nil {
				return err
			}
			if !kind.Runnable() {
				return fmt.Errorf("kind %q cannot be run directly", kind)
			}

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt, err := daemonrun.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			outcome := rt.Orchestrator.Run(cmd.Context(), pipeline.Request{Session: session, Kind: kind})
			view := newOutcomeView(outcome)
			if jsonOut {
				if err := writeJSON(cmd, view); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Kind", "State", "Job", "Bytes", "Removed", "Dispatched", "Detail"},
					view.rows(),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				))
			}
			if outcome.Succeeded() {
				return nil
			}
			if outcome.Err != nil {
				return fmt.Errorf("%s assembly failed: %w", kind, outcome.Err)
			}
			return errors.New(string(kind) + " assembly failed")
		},
	}

	cmd.Flags().StringVarP(&expediente, "expediente", "e", "", "Case number (numero_expediente)")
	cmd.Flags().Int64VarP(&sessionID, "session", "s", 0, "Recording session id (id_sesion)")
	cmd.Flags().StringVarP(&kindName, "kind", "k", "audio", "Media kind: audio, video, video2 or audio2 (re-extract from video2.webm)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the outcome as JSON")
	_ = cmd.MarkFlagRequired("expediente")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
