// Command chat is a minimal terminal front end for the assistant: it owns one
// conversation manager and renders its materialized view after every turn.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"schoolchat/internal/auth"
	"schoolchat/internal/chat"
	"schoolchat/internal/gateway"
	"schoolchat/internal/models"
)

func main() {
	apiBase := flag.String("api", "http://localhost:8090", "chat API base URL")
	token := flag.String("token", "", "bearer token (overrides username/password)")
	username := flag.String("username", "", "account username")
	password := flag.String("password", "", "account password")
	flag.Parse()

	var creds auth.CredentialProvider
	switch {
	case *token != "":
		creds = auth.StaticCredentials{Token: *token, Label: "token"}
	case *username != "":
		creds = auth.NewPasswordCredentials(*apiBase, *username, *password)
	}

	client := gateway.NewClient(*apiBase, creds)
	manager := chat.NewManager(client)

	ctx := context.Background()
	if authenticated, identity := client.TestAuth(ctx); authenticated {
		fmt.Printf("Signed in as %s.\n", identity)
	} else {
		fmt.Println("Not signed in; asking anonymously.")
	}
	fmt.Println("Ask about the schools. Commands: /clear /sources /stats /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/clear":
			manager.Clear()
			fmt.Println("Conversation cleared.")
			continue
		case line == "/stats":
			view := manager.View()
			fmt.Printf("%d messages, average response %.2fs\n", view.MessageCount, view.AverageResponseTime)
			continue
		case line == "/sources":
			printSourceLinks(ctx, client, manager.View().Sources)
			continue
		}

		if !manager.Send(ctx, line) {
			fmt.Println("(still waiting on the previous answer)")
			continue
		}
		render(manager.View())
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}
}

func render(view chat.View) {
	if view.Err != "" {
		fmt.Printf("[error] %s\n", view.Err)
	}
	if len(view.Messages) == 0 {
		return
	}
	last := view.Messages[len(view.Messages)-1]
	fmt.Println(last.Content)
	if last.ResponseTime > 0 {
		fmt.Printf("(answered in %.2fs)\n", last.ResponseTime)
	}
	if len(view.Sources) > 0 {
		fmt.Print("Sources:")
		for _, src := range view.Sources {
			fmt.Printf(" %s", src.Filename)
		}
		fmt.Println()
	}
}

func printSourceLinks(ctx context.Context, client *gateway.Client, sources []models.Source) {
	if len(sources) == 0 {
		fmt.Println("No sources for the last answer.")
		return
	}
	for _, src := range sources {
		resp, err := client.GetSourceURL(ctx, src.SourceID, src.Location)
		if err != nil {
			fmt.Printf("%s: %v\n", src.Filename, err)
			continue
		}
		fmt.Printf("%s: %s (expires %s)\n", src.Filename, resp.PresignedURL, resp.ExpiresAt.Format("15:04:05"))
	}
}
