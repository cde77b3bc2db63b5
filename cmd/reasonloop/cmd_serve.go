package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocketomega/reasonloop/internal/session"
	"github.com/pocketomega/reasonloop/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI and the /api/reason SSE endpoint",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	printBanner()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	s := a.settings
	fmt.Printf("🤖 LLM: %s\n", a.provider.Name())
	if envPath != "" {
		fmt.Printf("🔑 Env: %s\n", envPath)
	}
	fmt.Printf("📋 Prompts: dir=%q rules=%q\n", s.Server.PromptsDir, s.Server.UserRulesPath)
	fmt.Printf("🧭 Limits: max_items=%d max_rejections=%d threshold=%.2f cache=%d\n",
		s.Limits.MaxItems, s.Limits.MaxRejectionsPerSlot, s.Limits.SimilarityThreshold, s.Limits.SimilarityCacheSize)

	store := session.NewStore(time.Duration(s.Server.SessionTTLMinutes)*time.Minute, s.Server.SessionMaxMessages)
	defer store.Close()
	fmt.Printf("💬 Sessions: ttl=%dm max_messages=%d\n", s.Server.SessionTTLMinutes, s.Server.SessionMaxMessages)

	reason := web.NewReasonHandler(web.ReasonHandlerOptions{
		Responder:     a.responder,
		Store:         store,
		MaxConcurrent: s.Server.MaxConcurrentSessions,
	})
	command := web.NewCommandHandler(web.CommandHandlerOptions{
		Loader:          a.loader,
		Store:           store,
		ModelName:       a.provider.Name(),
		SimilarityCache: a.cacheLen(),
		ActiveRuns:      reason.Active,
	})
	health := web.NewHealthHandler(web.HealthInfo{
		LLMModel:        a.provider.Name(),
		SessionCount:    store.Count,
		ActiveRuns:      reason.Active,
		MaxRuns:         reason.Capacity(),
		SimilarityCache: a.cacheLen(),
	})

	srv, err := web.NewServer(reason, command, health)
	if err != nil {
		return fmt.Errorf("create web server: %w", err)
	}
	return srv.Start(ctx, s.Server.Port)
}

func printBanner() {
	fmt.Println(`  ╦═╗╔═╗╔═╗╔═╗╔═╗╔╗╔  ╦  ╔═╗╔═╗╔═╗`)
	fmt.Println(`  ╠╦╝║╣ ╠═╣╚═╗║ ║║║║  ║  ║ ║║ ║╠═╝`)
	fmt.Println(`  ╩╚═╚═╝╩ ╩╚═╝╚═╝╝╚╝  ╩═╝╚═╝╚═╝╩  `)
	fmt.Printf("       step-by-step reasoning · v%s\n", version)
}
