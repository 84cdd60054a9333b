package body

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// TemplateBody renders each declared output artifact from the matching
// input template inside the workspace. Inputs and outputs are paired by
// position; a lone input is reused for every output.
type TemplateBody struct{}

// NewTemplateBody creates a TemplateBody.
func NewTemplateBody() *TemplateBody {
	return &TemplateBody{}
}

// templateContext is the data available to templates.
type templateContext struct {
	TaskID      string
	Title       string
	Description string
	Inputs      []string
	Outputs     []string
}

// Run renders the outputs. All paths are resolved inside the workspace.
func (b *TemplateBody) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	if len(inv.Outputs) == 0 {
		return Outcome{}, fmt.Errorf("task %s declares no outputs to render", inv.TaskID)
	}
	if len(inv.Inputs) == 0 {
		return Outcome{}, fmt.Errorf("task %s declares no template inputs", inv.TaskID)
	}

	data := templateContext{
		TaskID:      inv.TaskID,
		Title:       inv.Title,
		Description: inv.Description,
		Inputs:      inv.Inputs,
		Outputs:     inv.Outputs,
	}

	for i, outName := range inv.Outputs {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		inName := inv.Inputs[0]
		if i < len(inv.Inputs) {
			inName = inv.Inputs[i]
		}

		src, err := os.ReadFile(filepath.Join(inv.Workspace, inName))
		if err != nil {
			return Outcome{}, fmt.Errorf("read template %s: %w", inName, err)
		}

		tmpl, err := template.New(inName).Parse(string(src))
		if err != nil {
			return Outcome{}, fmt.Errorf("parse template %s: %w", inName, err)
		}

		outPath := filepath.Join(inv.Workspace, outName)
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return Outcome{}, fmt.Errorf("create output directory: %w", err)
		}

		f, err := os.Create(outPath)
		if err != nil {
			return Outcome{}, fmt.Errorf("create output %s: %w", outName, err)
		}
		if err := tmpl.Execute(f, data); err != nil {
			f.Close()
			return Outcome{}, fmt.Errorf("render %s: %w", outName, err)
		}
		if err := f.Close(); err != nil {
			return Outcome{}, fmt.Errorf("close output %s: %w", outName, err)
		}
	}

	return Outcome{Outputs: inv.Outputs}, nil
}

var _ Body = (*TemplateBody)(nil)
