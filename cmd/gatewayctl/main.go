package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "Chat gateway CLI",
	Long:  "A CLI for chatting through the gateway and administering a company.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with --format=raw)")

	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(chatsCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(membersCmd())

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(plansCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage CLI configuration"}

	setCmd := &cobra.Command{
		Use:   "set <address|token|tls_ca_cert> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "address":
				cfg.Address = args[1]
			case "token":
				cfg.Token = args[1]
			case "tls_ca_cert":
				cfg.TLSCACert = args[1]
			default:
				return fmt.Errorf("unknown config key %q", args[0])
			}
			if err := saveConfig(); err != nil {
				return err
			}
			printSuccess("Saved " + args[0] + " to " + configPath())
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if cfg.Token != "" {
				token = "(set)"
			}
			printResult(map[string]any{
				"address":     cfg.Address,
				"token":       token,
				"tls_ca_cert": cfg.TLSCACert,
				"file":        configPath(),
			})
			return nil
		},
	}

	cmd.AddCommand(setCmd, showCmd)
	return cmd
}

// --- chat ---

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message and stream the reply",
		Long:  "Sends one user message. Without an argument the message is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			session, _ := cmd.Flags().GetString("session")
			tempKey, _ := cmd.Flags().GetString("temp-key")

			message := strings.Join(args, " ")
			if message == "" {
				fmt.Fprint(os.Stderr, "> ")
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Scan()
				message = strings.TrimSpace(scanner.Text())
			}
			if message == "" {
				return fmt.Errorf("empty message")
			}

			body := map[string]any{
				"messages": []map[string]string{{"role": "user", "content": message}},
				"model":    model,
			}
			if session != "" {
				body["sessionId"] = session
			}
			if tempKey != "" {
				body["tempApiKey"] = tempKey
			}

			client := newClient()
			if err := client.stream("/chat", body, os.Stdout); err != nil {
				printError(err.Error())
				return nil
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().String("model", "openai:gpt-4o-mini", "Model id")
	cmd.Flags().String("session", "", "Session id to append to")
	cmd.Flags().String("temp-key", "", "Provider key for this request only")
	return cmd
}

func chatsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "chats", Short: "Manage chat sessions"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().get("/chats")
			if err != nil {
				printError(err.Error())
				return nil
			}
			rows, _ := result["data"].([]any)
			printRows(rows, "id", "title", "model", "updated_at")
			return nil
		},
	}

	newCmd := &cobra.Command{
		Use:   "new [title]",
		Short: "Create a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			agent, _ := cmd.Flags().GetString("agent")
			body := map[string]any{"title": strings.Join(args, " "), "model": model}
			if agent != "" {
				body["agentId"] = agent
			}
			result, err := newClient().post("/chats", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	newCmd.Flags().String("model", "", "Model id (default: server default)")
	newCmd.Flags().String("agent", "", "Agent id")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().get("/chats/" + url.PathEscape(args[0]))
			if err != nil {
				printError(err.Error())
				return nil
			}
			data, _ := result["data"].(map[string]any)
			if outputFormat == "json" {
				printJSON(data)
				return nil
			}
			if s, ok := data["session"].(map[string]any); ok {
				fmt.Printf("# %v (%v)\n\n", s["title"], s["model"])
			}
			msgs, _ := data["messages"].([]any)
			for _, m := range msgs {
				msg, _ := m.(map[string]any)
				fmt.Printf("[%v]\n%v\n\n", msg["role"], msg["content"])
			}
			return nil
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().patch("/chats/"+url.PathEscape(args[0]), map[string]any{
				"title": strings.Join(args[1:], " "),
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().delete("/chats/" + url.PathEscape(args[0])); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Session deleted.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, newCmd, showCmd, renameCmd, deleteCmd)
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List selectable models and what your plan allows",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().get("/models")
			if err != nil {
				printError(err.Error())
				return nil
			}
			if outputFormat == "json" {
				printJSON(result)
				return nil
			}
			rows, _ := result["models"].([]any)
			printRows(rows, "id", "label", "badge")
			if master, _ := result["isMaster"].(bool); master {
				fmt.Println("\nallowed: all (master admin)")
			} else if allowed, ok := result["allowedModels"].([]any); ok {
				fmt.Println("\nallowed:", joinAny(allowed))
			}
			return nil
		},
	}
}

// --- company administration ---

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Manage company provider keys"}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which providers have a key",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().get("/settings/keys")
			if err != nil {
				printError(err.Error())
				return nil
			}
			rows, _ := result["data"].([]any)
			printRows(rows, "provider", "configured", "fingerprint", "readable")
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <provider> [key]",
		Short: "Store a provider key",
		Long:  "Stores a provider key. Without the key argument it is read from stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 2 {
				key = args[1]
			} else {
				fmt.Fprint(os.Stderr, "API key: ")
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Scan()
				key = strings.TrimSpace(scanner.Text())
			}
			result, err := newClient().put("/settings/keys/"+url.PathEscape(args[0]), map[string]any{"key": key})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a provider key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().delete("/settings/keys/" + url.PathEscape(args[0])); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Key removed.")
			return nil
		},
	}

	cmd.AddCommand(statusCmd, setCmd, deleteCmd)
	return cmd
}

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "agents", Short: "Manage company agents"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().get("/agents")
			if err != nil {
				printError(err.Error())
				return nil
			}
			rows, _ := result["data"].([]any)
			printRows(rows, "id", "name", "model")
			return nil
		},
	}

	saveCmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Create or update an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			model, _ := cmd.Flags().GetString("model")
			prompt, _ := cmd.Flags().GetString("prompt")
			promptFile, _ := cmd.Flags().GetString("prompt-file")
			description, _ := cmd.Flags().GetString("description")
			if promptFile != "" {
				data, err := os.ReadFile(promptFile)
				if err != nil {
					return err
				}
				prompt = string(data)
			}
			result, err := newClient().put("/agents", map[string]any{
				"id":            id,
				"name":          args[0],
				"description":   description,
				"prompt_system": prompt,
				"model":         model,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if d, ok := result["data"].(map[string]any); ok {
				printResult(d)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	saveCmd.Flags().String("id", "", "Agent id to update")
	saveCmd.Flags().String("model", "", "Model id")
	saveCmd.Flags().String("prompt", "", "System prompt")
	saveCmd.Flags().String("prompt-file", "", "Read the system prompt from a file")
	saveCmd.Flags().String("description", "", "Short description")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().delete("/agents/" + url.PathEscape(args[0])); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Agent deleted.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, saveCmd, deleteCmd)
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for _, name := range []string{"action", "since", "company_id"} {
				if v, _ := cmd.Flags().GetString(name); v != "" {
					q.Set(name, v)
				}
			}
			if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
				q.Set("limit", fmt.Sprint(n))
			}
			path := "/audit-log"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			result, err := newClient().get(path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			rows, _ := result["data"].([]any)
			printRows(rows, "id", "created_at", "action", "user_id", "details")
			return nil
		},
	}
	cmd.Flags().String("action", "", "Only this action")
	cmd.Flags().String("since", "", "RFC3339 lower bound")
	cmd.Flags().String("company_id", "", "Company (master admins only)")
	cmd.Flags().Int("limit", 0, "Maximum rows")
	return cmd
}

func membersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "members", Short: "Company membership"}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check whether the plan has room for another member",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().post("/company/members/check", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	})
	return cmd
}
