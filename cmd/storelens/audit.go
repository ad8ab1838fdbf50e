package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/config"
	"github.com/storelens/storelens/locking"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/pdp"
	"github.com/storelens/storelens/session"
	"github.com/storelens/storelens/store"
)

// newAuditCmd runs one session locally without the API or a queue,
// printing the terminal session and its page tasks as JSON. Meant for
// debugging single stores.
func newAuditCmd() *cobra.Command {
	var (
		mode          string
		policyVersion string
		disableLocks  bool
		storeHTML     bool
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Audit a single store URL and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(args[0], mode, policyVersion, disableLocks, storeHTML, timeout)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(models.ModeAudit), "session mode: audit or debug")
	cmd.Flags().StringVar(&policyVersion, "policy", "", "policy version tag (default: built-in default)")
	cmd.Flags().BoolVar(&disableLocks, "disable-locks", false, "bypass the domain lock and throttle")
	cmd.Flags().BoolVar(&storeHTML, "store-html", false, "store the compressed HTML artifact")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall session timeout")
	return cmd
}

func runAudit(url, mode, policyVersion string, disableLocks, storeHTML bool, timeout time.Duration) error {
	cfg := config.Load()
	initLogger(cfg.Log)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	rules, err := registry.Resolve(policyVersion)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := browser.New(cfg.Browser)
	if err != nil {
		return err
	}
	defer b.Close()

	hostname, _ := os.Hostname()
	orch := session.NewOrchestrator(
		b,
		locking.NewMemStore(),
		registry,
		pdp.NewPrefilter(cfg.Browser.DefaultProxy),
		db,
		store.NewArtifactWriter(cfg.Store.ArtifactDir),
		session.NewEvaluator(cfg.Store.EvaluatorURL),
		hostname,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	now := time.Now().UTC()
	sess := &models.Session{
		ID:     uuid.New(),
		URL:    url,
		Domain: locking.NormalizeDomain(url),
		Status: models.StatusQueued,
		Config: models.SessionConfig{
			Mode:          models.Mode(mode),
			PolicyVersion: rules.Version,
			DisableLocks:  disableLocks,
			StoreHTML:     storeHTML,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.CreateSession(ctx, sess); err != nil {
		return err
	}

	result, err := orch.Run(ctx, models.Job{
		SessionID:     sess.ID,
		URL:           url,
		Mode:          sess.Config.Mode,
		PolicyVersion: sess.Config.PolicyVersion,
		DisableLocks:  disableLocks,
	})
	if err != nil {
		return err
	}

	pages, _ := db.ListPageTasks(ctx, sess.ID)
	out, err := json.MarshalIndent(models.AuditResponse{
		Success: result.Status == models.StatusCompleted,
		Session: result,
		Pages:   pages,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
