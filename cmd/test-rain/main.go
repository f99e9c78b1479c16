package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/SPIDERMANrr/HYDRONAV/internal/clients/openweather"
	"github.com/SPIDERMANrr/HYDRONAV/internal/lib/geo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "check":
		handleCheck()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of the point to check")
	lng := fs.Float64("lng", 0, "Longitude of the point to check")
	apiKey := fs.String("api-key", os.Getenv("HYDRONAV_WEATHER__API_KEY"), "OpenWeatherMap API key")
	threshold := fs.Float64("threshold", 7.6, "Rain intensity in mm/h that counts as a flood risk")
	timeout := fs.Int("timeout", 10, "Timeout in seconds")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-rain check --lat 16.5062 --lng 80.6480")
		fmt.Println("  (Current rain intensity over Vijayawada)")
		os.Exit(1)
	}

	if *apiKey == "" {
		log.Fatal("OpenWeatherMap API key is required. Set HYDRONAV_WEATHER__API_KEY or use --api-key")
	}

	at, err := geo.NewPoint(*lat, *lng)
	if err != nil {
		log.Fatalf("Error parsing coordinates: %v", err)
	}

	client := openweather.NewClient(openweather.Config{APIKey: *apiKey})
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	fmt.Printf("Checking conditions at (%.4f, %.4f)...\n\n", at.Latitude, at.Longitude)

	conditions, err := client.CurrentConditions(ctx, at)
	if err != nil {
		log.Fatalf("Error fetching conditions: %v", err)
	}

	fmt.Printf("CURRENT CONDITIONS:\n")
	if conditions.LocationName != "" {
		fmt.Printf("  Location: %s\n", conditions.LocationName)
	}
	if conditions.Description != "" {
		fmt.Printf("  Sky: %s\n", conditions.Description)
	}
	fmt.Printf("  Rain: %.1f mm/h\n", conditions.RainMMPerHour)
	fmt.Printf("  Temperature: %.1f C\n", conditions.TemperatureC)
	fmt.Printf("  Wind: %.1f m/s\n", conditions.WindSpeedMS)
	fmt.Printf("  Observed: %s\n\n", conditions.ObservedAt.Format("2006-01-02 15:04:05"))

	if conditions.RainMMPerHour >= *threshold {
		fmt.Printf("Rain is at or above the %.1f mm/h threshold.\n", *threshold)
		fmt.Printf("The rain watch would place a risk zone here.\n")
	} else {
		fmt.Printf("Rain is below the %.1f mm/h threshold, no risk zone.\n", *threshold)
	}
}

func printUsage() {
	fmt.Printf(`test-rain - OpenWeatherMap rain intensity probe

USAGE:
    test-rain <command> [options]

COMMANDS:
    check    Query current rain intensity at a point
    help     Show this help message

EXAMPLES:
    # Is it raining hard enough over Vijayawada to spawn a risk zone?
    test-rain check --lat 16.5062 --lng 80.6480 --threshold 7.6

ENVIRONMENT VARIABLES:
    HYDRONAV_WEATHER__API_KEY    OpenWeatherMap API key (alternative to --api-key)

For more information, visit: https://github.com/SPIDERMANrr/HYDRONAV
`)
}
