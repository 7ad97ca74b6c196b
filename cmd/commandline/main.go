package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"newschat-backend/pkg/sdk"
	"newschat-backend/pkg/utils"
)

func main() {
	// Find env file
	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}

	// Load global config
	cfg := utils.NewConfigFromEnv(envFile)

	client := sdk.NewClient(
		cfg.GetWithDefault("BACKEND_URL", "http://localhost:8080"),
		cfg.Get("API_KEY"),
	)

	// Start interactive session
	ctx := context.Background()
	if err := startInteractiveSession(ctx, client); err != nil {
		log.Fatalf("[COMMANDLINE]: Failed to start interactive session: %v", err)
	}
}

// startInteractiveSession runs the command line interface for the news chat
// backend. The session is ended on exit so its history is archived.
func startInteractiveSession(ctx context.Context, client *sdk.Client) error {
	fmt.Println("News chat started. Type 'exit' to quit.")

	// Create a single session on startup for the entire conversation
	sess, err := client.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	fmt.Printf("Session created: %s\n", sess.SessionID)

	// Create scanner for reading user input
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())

		if input == "exit" {
			break
		}

		if input == "" {
			continue
		}

		resp, err := client.SendMessage(ctx, sess.SessionID, &sdk.PostMessageRequest{Content: input})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		fmt.Printf("Assistant: %s\n", resp.Text)
		for _, source := range resp.Sources {
			fmt.Printf("  - %s (%s)\n", source.Title, source.URL)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	// End the session so the conversation is archived
	outcome, err := client.DeleteSession(ctx, sess.SessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	if outcome.TranscriptSaved {
		fmt.Printf("Conversation archived as %s (%d messages)\n", outcome.TranscriptID, outcome.MessageCount)
	}
	return nil
}
