package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/sdr-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/sdr-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/sdr-ai-platform/internal/config"
	"github.com/wolfman30/sdr-ai-platform/internal/llm"
	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// llmtest runs one qualification extraction against the configured
// provider so keys and model ids can be checked without WhatsApp.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New("debug")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var awsCfgPtr *aws.Config
	if awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg); err != nil {
		logger.Warn("aws config not loaded; bedrock unavailable", "error", err)
	} else {
		awsCfgPtr = &awsCfg
	}

	client, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfgPtr, logger)
	if err != nil {
		log.Fatalf("build llm client: %v", err)
	}
	if client == nil {
		fmt.Println("No LLM provider configured; the extractor will use keyword rules only.")
	}

	history := []llm.Message{
		{Role: llm.RoleAssistant, Content: "Oi! Aqui é a Sofia. Pra eu entender melhor, qual o faturamento anual da empresa?"},
		{Role: llm.RoleUser, Content: "Sou o dono da Clínica Sorriso, faturamos uns 2 milhões por ano"},
		{Role: llm.RoleUser, Content: "precisamos resolver o atendimento ainda este mês, recebemos 80 mensagens por dia"},
	}
	if len(os.Args) > 1 {
		history = append(history, llm.Message{Role: llm.RoleUser, Content: os.Args[1]})
	}

	extractor := qualification.NewExtractor(client, logger, qualification.WithExtractionModel(bootstrap.ModelFor(cfg)))
	start := time.Now()
	data, source, err := extractor.Extract(ctx, history, qualification.Hints{})
	if err != nil {
		log.Fatalf("extract: %v", err)
	}

	out, _ := json.MarshalIndent(data, "", "  ")
	fmt.Printf("source=%s elapsed=%v\n%s\n", source, time.Since(start).Round(time.Millisecond), out)

	decision := qualification.NewGate(cfg.MinAnnualRevenue).IsQualified(data)
	fmt.Printf("qualified=%t score=%d temperature=%s reason=%q\n",
		decision.Qualified, decision.Score, qualification.TemperatureFor(decision.Score), decision.Reason)
}
