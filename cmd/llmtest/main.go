package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/consult-funnel/cmd/mainconfig"
	"github.com/wolfman30/consult-funnel/internal/app/bootstrap"
	appconfig "github.com/wolfman30/consult-funnel/internal/config"
	"github.com/wolfman30/consult-funnel/internal/conversation"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	message := flag.String("message", "요즘 잠을 잘 못 자고 속이 더부룩해요", "user message to send")
	stageName := flag.String("stage", "symptom_explore", "stage the conversation is in")
	providers := flag.String("providers", "gemini,bedrock,openai,anthropic", "comma separated providers to check")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New("warn")

	stage, err := dialogue.ParseStage(*stageName)
	if err != nil {
		log.Fatalf("invalid stage: %v", err)
	}
	scenario, err := dialogue.LoadScenario(cfg.ScenarioPath)
	if err != nil {
		log.Fatalf("load scenario: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var awsCfg *aws.Config
	if loaded, err := mainconfig.LoadAWSConfig(ctx, cfg); err == nil {
		awsCfg = &loaded
	}

	now := time.Now()
	req := dialogue.GenerationRequest{
		SessionID: "llmtest",
		Stage:     stage,
		Message:   *message,
		History: []dialogue.Turn{
			{Role: dialogue.RoleAgent, Text: scenario.Greeting, Timestamp: now},
			{Role: dialogue.RoleUser, Text: *message, Timestamp: now},
		},
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("LLM Provider Test")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("stage=%s message=%q\n", stage, *message)

	for i, name := range strings.Split(*providers, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		fmt.Printf("\n[%d] Testing %s...\n", i+1, name)
		client, err := bootstrap.BuildLLMClient(ctx, name, cfg, awsCfg)
		if err != nil {
			fmt.Printf("    ⏭  Skipping %s: %v\n", name, err)
			continue
		}
		if client == nil {
			fmt.Printf("    ⏭  %s has no hosted model\n", name)
			continue
		}

		gen := conversation.NewLLMGenerator(client, scenario, logger,
			conversation.WithMaxTokens(int32(cfg.LLMMaxTokens)),
			conversation.WithTemperature(float32(cfg.LLMTemperature)),
		)
		start := time.Now()
		out, err := gen.Generate(ctx, req)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			fmt.Printf("    ❌ %s error (%v): %v\n", name, elapsed, err)
			continue
		}
		proposed := "none"
		if out.ProposedStage != nil {
			proposed = out.ProposedStage.String()
		}
		fmt.Printf("    ✅ %s response (%v), proposed stage: %s\n", name, elapsed, proposed)
		fmt.Printf("    %s\n", out.Reply)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("Providers that answered with a stage proposal can serve LLM_PROVIDER;")
	fmt.Println("the rest should only be used as LLM_FALLBACK_PROVIDER if at all.")
}
