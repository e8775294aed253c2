package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mintdesk/mintdesk/internal/auth"
	"github.com/mintdesk/mintdesk/internal/webhook"
)

type output struct {
	Key           string `json:"key"`
	KeyPrefix     string `json:"key_prefix"`
	KeyHash       string `json:"key_hash"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

func main() {
	var (
		env           = flag.String("env", auth.EnvLive, "Key environment: live or test")
		webhookSecret = flag.Bool("webhook-secret", false, "Also generate a MINT_WEBHOOK_SECRET")
		format        = flag.String("format", "env", "Output format: env, plain or json")
	)
	flag.Parse()

	if *env != auth.EnvLive && *env != auth.EnvTest {
		fmt.Fprintln(os.Stderr, "invalid env; use live or test")
		os.Exit(1)
	}

	generated, err := auth.GenerateMintKey(*env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate mint key:", err)
		os.Exit(1)
	}

	out := output{
		Key:       generated.Plaintext,
		KeyPrefix: generated.Prefix,
		KeyHash:   generated.Hash,
	}

	if *webhookSecret {
		out.WebhookSecret, err = webhook.GenerateSecret()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	switch strings.ToLower(*format) {
	case "env":
		// The key itself goes to stderr so redirecting stdout into a .env
		// file stores only the hash.
		fmt.Fprintln(os.Stderr, "mint key (shown once):", out.Key)
		fmt.Printf("MINT_API_KEY_HASH='%s'\n", out.KeyHash)
		if out.WebhookSecret != "" {
			fmt.Printf("MINT_WEBHOOK_SECRET=%s\n", out.WebhookSecret)
		}
	case "plain":
		fmt.Println(out.Key)
		fmt.Println(out.KeyHash)
		if out.WebhookSecret != "" {
			fmt.Println(out.WebhookSecret)
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use env, plain or json")
		os.Exit(1)
	}
}
