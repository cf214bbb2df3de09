// Command agentctl is a thin CLI wiring config, the provider Agent, and
// the conversation Manager together — ambient glue over the core API,
// not a feature surface of its own.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeim839/agentkit/internal/config"
	"github.com/zeim839/agentkit/internal/conversation"
	"github.com/zeim839/agentkit/internal/storage"
	"github.com/zeim839/agentkit/pkg/agent"
	"github.com/zeim839/agentkit/pkg/agent/providers/anthropic"
	"github.com/zeim839/agentkit/pkg/agent/providers/google"
	"github.com/zeim839/agentkit/pkg/agent/providers/ollama"
	"github.com/zeim839/agentkit/pkg/agent/providers/openai"
	"github.com/zeim839/agentkit/pkg/agent/providers/openrouter"
)

const defaultConfigPath = "agentkit.yaml"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "agentctl",
		Short: "agentctl manages conversations against any connected LLM provider",
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to config YAML")

	root.AddCommand(
		listConversationsCmd(&configPath),
		createConversationCmd(&configPath),
		sendCmd(&configPath),
		checkCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads config, connects every provider with credentials
// configured, and opens the SQLite-backed conversation Manager.
func bootstrap(configPath string) (*conversation.Manager, *storage.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("agentctl: %w", err)
	}

	log := slog.Default()
	client := &http.Client{}

	ag := agent.New(log)
	for name, p := range cfg.Providers {
		if p.APIKey == "" && name != "ollama" {
			continue
		}
		switch name {
		case "anthropic":
			ag.Connect(anthropic.New(p.APIKey, p.BaseURL, client))
		case "google":
			ag.Connect(google.New(p.APIKey, p.BaseURL, client))
		case "openai":
			ag.Connect(openai.New(p.APIKey, p.BaseURL, client))
		case "openrouter":
			ag.Connect(openrouter.New(p.APIKey, p.BaseURL, client))
		case "ollama":
			ag.Connect(ollama.New(p.BaseURL, client))
		default:
			log.Warn("agentctl: unrecognized provider in config, skipping", "provider", name)
		}
	}

	db, err := storage.Open(context.Background(), cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("agentctl: %w", err)
	}

	return conversation.New(ag, db), db, nil
}

func listConversationsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			convs, err := m.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range convs {
				fmt.Printf("%s\t%s\t%s\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func createConversationCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "create [title]",
		Short: "Create a new conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			conv, err := m.CreateConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(conv.ID)
			return nil
		},
	}
}

func sendCmd(configPath *string) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "send [conversation-id] [message]",
		Short: "Send a message to a conversation and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			c, err := m.GetConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			req := agent.Request{
				Model:    model,
				Messages: []agent.Message{{Role: agent.RoleUser, Content: agent.TextContent(args[1])}},
			}
			resp, err := c.SendMessage(cmd.Context(), req)
			if err != nil {
				return err
			}
			for _, msg := range resp.Messages {
				if msg.Content.Kind == agent.ContentText {
					fmt.Println(msg.Content.Text)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", `"provider:model_id" to send with`)
	return cmd
}

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity for every configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			for name, err := range m.Agent().Check(cmd.Context()) {
				status := "ok"
				if err != nil {
					status = err.Error()
				}
				fmt.Printf("%s: %s\n", name, status)
			}
			return nil
		},
	}
}
