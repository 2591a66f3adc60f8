// Terminal chat client: connects to the relay, opens one conversation with an
// artisan about a product and relays stdin lines into it. When GEMINI_API_KEY
// is set, simulated artisan replies come from the Generative Language API
// instead of the canned rotation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"artisora/internal/client/responder"
	"artisora/internal/client/session"
	"artisora/internal/client/socket"
	"artisora/internal/client/store"
	"artisora/internal/domain/entity"
	"artisora/pkg/config"
)

func main() {
	userID := flag.String("user", "", "local user id")
	userName := flag.String("name", "", "local display name")
	artisanID := flag.String("artisan", "", "artisan user id")
	artisanName := flag.String("artisan-name", "", "artisan display name")
	productID := flag.String("product", "", "product id")
	productName := flag.String("product-name", "", "product name")
	simulate := flag.Bool("simulate", false, "generate artisan replies locally")
	flag.Parse()

	if *userID == "" || *artisanID == "" || *productID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	storage, err := store.NewSQLiteStorage(cfg.ChatDBPath)
	if err != nil {
		log.Fatalf("Failed to open local cache: %v", err)
	}
	defer storage.Close()

	st, err := store.New(storage)
	if err != nil {
		log.Fatalf("Failed to load conversations: %v", err)
	}

	client := socket.NewClient(cfg.RelayURL)
	if err := client.Connect(context.Background(), *userID, *userName); err != nil {
		log.Fatalf("Failed to reach relay at %s: %v", cfg.RelayURL, err)
	}
	defer client.Disconnect()

	opts := []session.Option{session.WithSimulatedReplies(*simulate)}
	if cfg.GeminiAPIKey != "" {
		opts = append(opts, session.WithResponder(responder.NewGemini(cfg.GeminiAPIKey)))
	}

	sess := session.New(&entity.User{ID: *userID, DisplayName: *userName}, st, client, opts...)
	sess.Attach()
	defer sess.Detach()

	convID, err := sess.StartConversation(
		session.Counterparty{ID: *artisanID, Name: *artisanName},
		&entity.Product{ID: *productID, ArtisanID: *artisanID, ArtisanName: *artisanName, Name: *productName},
	)
	if err != nil {
		log.Fatalf("Failed to start conversation: %v", err)
	}
	if err := sess.SetActiveConversation(convID); err != nil {
		log.Fatalf("Failed to open conversation: %v", err)
	}

	history := 0
	if conv, ok := st.Get(convID); ok {
		for _, msg := range conv.Messages {
			fmt.Printf("%s: %s\n", msg.SenderName, msg.Content)
		}
		history = len(conv.Messages)
	}

	// The store's accessors return detached copies, so polling from a second
	// goroutine is safe while the read loop keeps applying events. Own sends
	// are skipped; they were already echoed on the prompt line.
	go func(printed int) {
		for range time.Tick(300 * time.Millisecond) {
			conv, ok := st.Get(convID)
			if !ok || len(conv.Messages) <= printed {
				continue
			}
			for _, msg := range conv.Messages[printed:] {
				if msg.SenderID != *userID {
					fmt.Printf("\n%s: %s\n> ", msg.SenderName, msg.Content)
				}
			}
			printed = len(conv.Messages)
		}
	}(history)

	fmt.Printf("Chatting with %s about %s. Ctrl-D to quit.\n> ", *artisanName, *productName)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		sess.NotifyTyping(convID)
		if err := sess.SendMessage(convID, scanner.Text()); err != nil {
			fmt.Printf("send failed: %v\n", err)
		}
		fmt.Print("> ")
	}
}
