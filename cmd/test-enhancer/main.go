package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/SPIDERMANrr/HYDRONAV/internal/cache"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/alerts"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "enhance":
		handleEnhance()
	case "test-connection":
		handleTestConnection()
	case "cached":
		handleCached()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleEnhance() {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	title := fs.String("title", "", "Raw alert title")
	description := fs.String("description", "", "Raw alert description")
	location := fs.String("location", "", "Location context")
	apiKey := fs.String("api-key", os.Getenv("HYDRONAV_ALERTS__OPENAI_API_KEY"), "OpenAI API key (empty uses the template enhancer)")
	model := fs.String("model", "gpt-4o-mini", "OpenAI model to use")
	timeout := fs.Int("timeout", 30, "Timeout in seconds")

	fs.Parse(os.Args[2:])

	if *description == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-enhancer enhance --title \"Krishna river flooding\" --description \"Water level rising near Prakasam barrage, left bank road submerged\" --location \"Vijayawada\"")
		fmt.Println("  test-enhancer enhance --description \"raw bulletin text\" --api-key sk-xxx")
		os.Exit(1)
	}

	enhancer := buildEnhancer(*apiKey, *model)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	raw := alerts.RawAlert{
		ID:          fmt.Sprintf("cli-test-%d", time.Now().Unix()),
		Title:       *title,
		Description: *description,
		Location:    *location,
		Source:      "cli",
		ReportedAt:  time.Now(),
	}

	fmt.Printf("Enhancing alert...\n")
	fmt.Printf("  Title: %s\n", raw.Title)
	fmt.Printf("  Description: %s\n", raw.Description)
	if raw.Location != "" {
		fmt.Printf("  Location: %s\n", raw.Location)
	}
	if *apiKey == "" {
		fmt.Printf("  Enhancer: template (no API key)\n\n")
	} else {
		fmt.Printf("  Enhancer: OpenAI %s\n\n", *model)
	}

	enhanced, err := enhancer.Enhance(ctx, raw)
	if err != nil {
		log.Fatalf("Error enhancing alert: %v", err)
	}

	printAlert(enhanced)
}

func handleTestConnection() {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)
	apiKey := fs.String("api-key", os.Getenv("HYDRONAV_ALERTS__OPENAI_API_KEY"), "OpenAI API key to test")
	model := fs.String("model", "gpt-4o-mini", "OpenAI model to test")
	timeout := fs.Int("timeout", 10, "Timeout in seconds")

	fs.Parse(os.Args[2:])

	if *apiKey == "" {
		log.Fatal("OpenAI API key is required. Set HYDRONAV_ALERTS__OPENAI_API_KEY or use --api-key")
	}

	enhancer := alerts.NewEnhancer(*apiKey, *model)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	fmt.Printf("Testing OpenAI API connection...\n")
	fmt.Printf("  Model: %s\n", *model)
	fmt.Printf("  Timeout: %d seconds\n\n", *timeout)

	if err := enhancer.HealthCheck(ctx); err != nil {
		fmt.Printf("Connection test failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Connection test successful, ready to enhance alerts.\n")
}

func handleCached() {
	fs := flag.NewFlagSet("cached", flag.ExitOnError)
	description := fs.String("description", "Road under water near the barrage", "Raw alert description")
	ttl := fs.Duration("ttl", time.Hour, "Cache TTL")

	fs.Parse(os.Args[2:])

	logger := zap.NewNop().Sugar()
	store := cache.New(logger)
	cached := alerts.NewCachedEnhancer(alerts.NewTemplateEnhancer(), store, *ttl, logger)

	raw := alerts.RawAlert{
		ID:          "cli-cached",
		Title:       "Cache demo",
		Description: *description,
		ReportedAt:  time.Now(),
	}

	fmt.Printf("Cache behavior for identical alert content:\n")
	fmt.Printf("  Cached before first call: %t\n", cached.IsCached(raw))

	first := time.Now()
	if _, err := cached.Enhance(context.Background(), raw); err != nil {
		log.Fatalf("Error on first enhancement: %v", err)
	}
	fmt.Printf("  First call: %s\n", time.Since(first))
	fmt.Printf("  Cached after first call: %t\n", cached.IsCached(raw))

	second := time.Now()
	if _, err := cached.Enhance(context.Background(), raw); err != nil {
		log.Fatalf("Error on second enhancement: %v", err)
	}
	fmt.Printf("  Second call: %s\n", time.Since(second))

	// Same text under a different feed ID still hits the content hash.
	raw.ID = "cli-cached-other"
	fmt.Printf("  Same content, different ID, cached: %t\n", cached.IsCached(raw))
}

func buildEnhancer(apiKey, model string) alerts.Enhancer {
	if apiKey == "" {
		return alerts.NewTemplateEnhancer()
	}
	return alerts.NewEnhancer(apiKey, model)
}

func printAlert(a alerts.TravelerAlert) {
	fmt.Printf("TRAVELER ALERT:\n")
	fmt.Printf("  ID: %s\n", a.ID)
	fmt.Printf("  Headline: %s\n", a.Headline)
	fmt.Printf("  Advice: %s\n", a.Advice)
	fmt.Printf("  Severity: %s\n", a.Severity)
	fmt.Printf("  Processed At: %s\n", a.ProcessedAt.Format("2006-01-02 15:04:05"))
}

func printUsage() {
	fmt.Printf(`test-enhancer - Alert enhancement preview tool

USAGE:
    test-enhancer <command> [options]

COMMANDS:
    enhance            Run one alert through the template or OpenAI enhancer
    test-connection    Test OpenAI API connectivity and authentication
    cached             Show content-hash caching on repeated enhancements
    help               Show this help message

EXAMPLES:
    # Preview template output (no API key needed)
    test-enhancer enhance --title "Krishna river flooding" --description "Left bank road submerged near Prakasam barrage"

    # Preview OpenAI output
    test-enhancer enhance --description "raw bulletin text" --api-key sk-xxx --model gpt-4o-mini

    # Verify caching kicks in for identical content
    test-enhancer cached --description "Road under water near the barrage"

ENVIRONMENT VARIABLES:
    HYDRONAV_ALERTS__OPENAI_API_KEY    OpenAI API key (alternative to --api-key)

For more information, visit: https://github.com/SPIDERMANrr/HYDRONAV
`)
}
