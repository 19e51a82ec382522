package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bridgefund/internal/planner"
	"bridgefund/internal/schema"
)

// runPlan drives one planner session against a running server.
func runPlan(cmd *cobra.Command, args []string) error {
	emphasis := schema.Emphasis(planEmphasis)
	if !emphasis.Valid() {
		return fmt.Errorf("invalid emphasis %q (valid: efficiency, empathy, balanced)", planEmphasis)
	}

	ctx, cancel := context.WithTimeout(context.Background(), planTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := planner.NewHTTPClient(planServer, planUser, planTimeout)
	p := planner.New(api, planner.Options{
		ProjectID:      planProject,
		Emphasis:       emphasis,
		StagedFallback: planStaged,
		ImageURL:       planImage,
	})
	defer p.Close()

	out := cmd.OutOrStdout()
	text := strings.Join(args, " ")
	logger.Info("planning", zap.String("project", p.State().ProjectID), zap.Int("chars", len(text)))

	if err := p.ProcessInput(ctx, text); err != nil {
		return err
	}
	if msg := statusLine(p.State().Error); msg != "" {
		fmt.Fprintln(out, msg)
	}

	if planTone {
		if err := p.CheckTone(ctx); err != nil {
			fmt.Fprintln(out, statusLine(err.Error()))
		}
	}
	if planSources {
		if err := p.AttachSources(ctx); err != nil {
			fmt.Fprintln(out, statusLine(err.Error()))
		}
	}

	s := p.State()
	fmt.Fprint(out, renderMarkdown(bundleMarkdown(s.Output, s.Sources)))

	if planPublish {
		if _, err := p.Publish(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, successStyle.Render("Published "+s.ProjectID))
		return nil
	}
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Draft %s saved (version %d)", s.ProjectID, s.Version)))
	return nil
}
