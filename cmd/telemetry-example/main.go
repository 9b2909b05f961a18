package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"streamview/telemetry/internal/services/eventstore"
	"streamview/telemetry/internal/services/reportrender"
	"streamview/telemetry/internal/services/signals"
	"streamview/telemetry/internal/services/telemetry"
	"streamview/telemetry/internal/services/vitals"
	"streamview/telemetry/internal/shared"
)

// Example walking through the tracking SDK end to end: configuration,
// the tracking wrappers, host signals, identification, stats and the
// HTML session report.
func main() {
	// Load .env so TELEMETRY_API_ENDPOINT / TELEMETRY_API_KEY can point
	// this example at a running collector.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	fmt.Println("=== StreamView Telemetry Example ===")

	config := telemetry.LoadConfig()
	config.BatchSize = 5
	config.FlushInterval = 10 * time.Second

	hub := signals.NewHub()
	webVitals := vitals.NewStaticSource(map[vitals.Metric]float64{
		vitals.LCP:  1850,
		vitals.CLS:  0.04,
		vitals.TTFB: 320,
	})

	manager := telemetry.New(config,
		telemetry.WithStore(eventstore.NewMemoryStore()),
		telemetry.WithSignals(hub),
		telemetry.WithVitals(webVitals),
		telemetry.WithEnvironment(&telemetry.StaticEnvironment{
			URL:            "https://streamview.example/feed",
			Agent:          "telemetry-example/1.0",
			Ref:            "https://search.example",
			ViewportWidth:  1280,
			ViewportHeight: 720,
			ScreenWidth:    1920,
			ScreenHeight:   1080,
		}),
	)
	defer manager.Destroy()

	session := manager.Session()
	fmt.Printf("✓ Session started: %s (page views: %d)\n", session.ID, session.PageViews)

	// Example 1: watch events as they are tracked
	fmt.Println("\n=== Live Event Feed ===")
	unsubscribe := manager.Subscribe(func(event shared.Event) {
		fmt.Printf("  -> %-12s %s\n", event.Category, event.Name)
	})
	defer unsubscribe()

	// Example 2: the tracking wrappers
	fmt.Println("\n=== Tracking User Activity ===")
	manager.TrackClick("signup-button", nil)
	manager.TrackSearch("lo-fi beats", 24)
	manager.TrackVideoEvent("play", "vid_8842", nil)
	manager.TrackVideoEvent("pause", "vid_8842", shared.Properties{"position": 42.5})
	manager.TrackEngagement("like", shared.Properties{"videoId": "vid_8842"})
	fmt.Println("✓ Tracked click, search, video and engagement events")

	// Example 3: navigation arrives through the signal hub
	fmt.Println("\n=== Navigation ===")
	hub.EmitRouteChange("/watch/vid_8842")
	fmt.Printf("✓ Route change recorded (page views now %d)\n", manager.Session().PageViews)

	// Example 4: identify the user once sign-in completes
	fmt.Println("\n=== Identification ===")
	manager.Identify("user_1234")
	manager.TrackEngagement("subscribe", shared.Properties{"channelId": "chan_77"})
	fmt.Println("✓ Events from here on carry userId user_1234")

	// Example 5: a runtime error surfaces as an error event
	fmt.Println("\n=== Error Tracking ===")
	hub.EmitError(signals.ErrorInfo{Message: "video decode stalled", Source: "player"})
	fmt.Println("✓ Error signal captured")

	// Give the web-vitals observers a moment to record their measurements.
	time.Sleep(100 * time.Millisecond)

	// Example 6: the stats projection
	fmt.Println("\n=== Session Stats ===")
	stats := manager.Stats()
	fmt.Printf("Total events: %d\n", stats.Total)
	fmt.Printf("Page views:   %d\n", stats.PageViews)
	fmt.Printf("Duration:     %s\n", stats.SessionDuration)
	for _, category := range shared.Categories {
		fmt.Printf("  %-12s %d\n", category, stats.ByCategory[category])
	}

	// Example 7: deliver to a collector when one is configured
	fmt.Println("\n=== Delivery ===")
	if config.APIEndpoint != "" {
		if err := manager.Flush(context.Background(), false); err != nil {
			log.Printf("Flush failed, events are kept for retry: %v", err)
		} else {
			fmt.Printf("✓ Batch delivered to %s\n", config.APIEndpoint)
		}
	} else {
		fmt.Println("No TELEMETRY_API_ENDPOINT set; events stay in the local backstop")
	}

	// Example 8: write the HTML session report
	fmt.Println("\n=== Session Report ===")
	snapshot := manager.Session()
	html, err := reportrender.RenderSession(snapshot, snapshot.Events)
	if err != nil {
		log.Printf("Failed to render report: %v", err)
	} else if err := os.WriteFile("telemetry-report.html", []byte(html), 0o644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Println("✓ Wrote telemetry-report.html")
	}

	fmt.Println("\n=== Example Complete ===")
	fmt.Println("Destroy ends the session and flushes whatever is still queued.")
}
