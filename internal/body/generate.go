package body

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/skein-dev/skein/internal/config"
)

const generateSystemPrompt = `You are a technical writer producing project
artifacts. Respond with the full content of the requested artifact and
nothing else: no preamble, no closing remarks, no code fences around the
whole document.`

// GenerateBody prompts an external generation service and writes the
// response to the task's declared output artifact.
type GenerateBody struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewGenerateBody creates a GenerateBody from generation settings. The
// service is reached either directly with an API key or through AWS
// Bedrock.
func NewGenerateBody(cfg config.GenerationConfig) (*GenerateBody, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &GenerateBody{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// Run prompts the service with the task's description and writes the
// reply to each declared output inside the workspace.
func (b *GenerateBody) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	if len(inv.Outputs) == 0 {
		return Outcome{}, fmt.Errorf("task %s declares no outputs to generate", inv.TaskID)
	}

	prompt := b.buildPrompt(inv)

	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: generateSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("generation call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	if text.Len() == 0 {
		return Outcome{}, fmt.Errorf("generation returned no text")
	}

	for _, outName := range inv.Outputs {
		outPath := filepath.Join(inv.Workspace, outName)
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return Outcome{}, fmt.Errorf("create output directory: %w", err)
		}
		if err := os.WriteFile(outPath, []byte(text.String()), 0644); err != nil {
			return Outcome{}, fmt.Errorf("write output %s: %w", outName, err)
		}
	}

	return Outcome{Output: text.String(), Outputs: inv.Outputs}, nil
}

// buildPrompt assembles the user prompt from the task's opaque fields.
func (b *GenerateBody) buildPrompt(inv Invocation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Produce the artifact %q.\n\n", strings.Join(inv.Outputs, ", "))
	if inv.Title != "" {
		fmt.Fprintf(&sb, "Task: %s\n", inv.Title)
	}
	if inv.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", inv.Description)
	}
	if len(inv.Inputs) > 0 {
		fmt.Fprintf(&sb, "\nReference inputs: %s\n", strings.Join(inv.Inputs, ", "))
	}
	return sb.String()
}

var _ Body = (*GenerateBody)(nil)
