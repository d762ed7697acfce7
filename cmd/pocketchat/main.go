package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pocketchat/pocketchat-go/internal/config"
	"github.com/pocketchat/pocketchat-go/pkg/chat"
	"github.com/pocketchat/pocketchat-go/pkg/domain"
	"github.com/pocketchat/pocketchat-go/pkg/session"
	"github.com/pocketchat/pocketchat-go/pkg/storage"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	message    = flag.String("message", "", "Send a single message and exit")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	newLogger := zap.NewProduction
	if cfg.Debug {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// The durable store carries the visitor id and conversation history
	// across runs; the conversation id is visit-scoped, one per process
	durable, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer durable.Close()

	ids := session.NewIdentity(durable, storage.NewMemory(), cfg.Storage.Prefix, logger)
	cache := session.NewCache(durable, cfg.Storage.Prefix, logger)

	headers := make(map[string]string, len(cfg.Client.Headers)+1)
	for k, v := range cfg.Client.Headers {
		headers[k] = v
	}
	if _, ok := headers["Authorization"]; !ok && cfg.API.Key != "" {
		headers["Authorization"] = "Bearer " + cfg.API.Key
	}

	engine := chat.New(chat.Config{
		APIURL:  cfg.API.URL,
		Headers: headers,
		Params:  cfg.Client.Params,
	}, ids, cache, logger)
	defer engine.Close()

	var catalog *domain.Catalog
	if cfg.Catalog.Path != "" {
		catalog, err = domain.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			logger.Warn("Failed to load catalog, product suggestions will show raw ids", zap.Error(err))
			catalog = nil
		}
	}

	events, unsub := engine.Subscribe()
	defer unsub()
	r := &renderer{catalog: catalog}

	if *message != "" {
		runTurn(engine, events, r, cfg.API.Timeout, *message)
		return
	}

	fmt.Println("PocketChat. Type a message, a suggestion number, /new, /clear, or /quit.")
	if msgs := engine.Messages(); len(msgs) > 0 {
		fmt.Println("(restored conversation)")
		for _, m := range msgs {
			fmt.Printf("%s: %s\n", m.Role, m.Content)
		}
		r.printSuggestions(engine.SuggestedReplies(), engine.ProductSuggestions())
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/new":
			engine.StartNewChat()
			drainEvents(events, r)
			continue
		case "/clear":
			engine.ClearMessages()
			drainEvents(events, r)
			continue
		}

		// A bare number picks the matching one-tap suggestion
		if n, err := strconv.Atoi(line); err == nil {
			if replies := engine.SuggestedReplies(); n >= 1 && n <= len(replies) {
				line = replies[n-1]
				fmt.Printf("you: %s\n", line)
			}
		}

		runTurn(engine, events, r, cfg.API.Timeout, line)
	}
}

// runTurn sends one message and renders events until the turn settles
func runTurn(engine *chat.Engine, events <-chan chat.Event, r *renderer, timeout time.Duration, text string) {
	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- engine.Send(ctx, text) }()

	waiting := true
	for waiting {
		select {
		case ev := <-events:
			r.render(ev)
		case <-result:
			waiting = false
		}
	}
	// Send returned after publishing, so what's left is already buffered
	drainEvents(events, r)
}

func drainEvents(events <-chan chat.Event, r *renderer) {
	for {
		select {
		case ev := <-events:
			r.render(ev)
		default:
			return
		}
	}
}

// renderer prints engine events as a terminal conversation
type renderer struct {
	catalog   *domain.Catalog
	streaming bool
}

func (r *renderer) render(ev chat.Event) {
	switch ev.Type {
	case chat.EventStateChanged:
		if ev.State == chat.StateStreaming {
			fmt.Print("assistant: ")
			r.streaming = true
		}
	case chat.EventAssistantDelta:
		fmt.Print(ev.Delta)
	case chat.EventAssistantMessage:
		fmt.Println()
		r.streaming = false
	case chat.EventSuggestions:
		r.printSuggestions(ev.Replies, ev.Products)
	case chat.EventTurnFailed:
		if r.streaming {
			fmt.Println()
			r.streaming = false
		}
		fmt.Printf("error (%s): %s\n", ev.Err.Category, ev.Err.Message)
	case chat.EventConversationRenewed:
		fmt.Println("Started a new conversation.")
	case chat.EventMessagesCleared:
		fmt.Println("Messages cleared.")
	}
}

func (r *renderer) printSuggestions(replies []string, products []domain.ProductSuggestion) {
	for i, reply := range replies {
		fmt.Printf("  %d. %s\n", i+1, reply)
	}
	for _, p := range products {
		if r.catalog != nil {
			if prod, ok := r.catalog.Find(p.ProductID); ok {
				size := ""
				if p.SuggestedSize != "" {
					size = ", size " + p.SuggestedSize
				}
				fmt.Printf("  * %s (%.2f %s%s)\n", prod.Name, prod.Price, prod.Currency, size)
				continue
			}
		}
		if p.SuggestedSize != "" {
			fmt.Printf("  * %s, size %s\n", p.ProductID, p.SuggestedSize)
		} else {
			fmt.Printf("  * %s\n", p.ProductID)
		}
	}
}
