package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bridgefund/internal/research"
	"bridgefund/internal/store"
)

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.Store.Driver, cfg.Store.DatabasePath)
}

// runShow prints one stored project.
func runShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := st.GetProject(cmdContext(cmd), args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("project %s not found", args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, projectHeader(p))
	fmt.Fprint(out, renderMarkdown(projectMarkdown(p)))
	return nil
}

// runGrantRole sets a user's role. Roles are only ever written here, never
// from request data.
func runGrantRole(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	userID, role := args[0], strings.ToLower(args[1])
	if err := st.SetUserRole(cmdContext(cmd), userID, role); err != nil {
		return err
	}
	logger.Info("role granted", zap.String("user", userID), zap.String("role", role))
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("%s is now %s", userID, role)))
	return nil
}

// runResearch looks up sources for the given claims with the configured
// backend, without a server.
func runResearch(cmd *cobra.Command, args []string) error {
	r := research.New(research.Config{
		Enabled:            cfg.IsResearchEnabled(),
		BaseURL:            cfg.Research.BaseURL,
		MaxResultsPerClaim: cfg.Research.MaxResultsPerClaim,
		Concurrency:        cfg.Research.Concurrency,
		Timeout:            cfg.GetResearchTimeout(),
	})
	out := cmd.OutOrStdout()
	if !r.Enabled() {
		fmt.Fprintln(out, noticeStyle.Render("Note: research is disabled in config"))
		return nil
	}

	sources, err := r.Sources(cmdContext(cmd), args)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No sources found"))
		return nil
	}
	for _, s := range sources {
		fmt.Fprintf(out, "%s\n  %s\n", s.Label, mutedStyle.Render(s.URL))
	}
	return nil
}
