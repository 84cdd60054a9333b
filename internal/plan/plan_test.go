package plan

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePlan = `
version: 1
name: scaffold-service
tasks:
  - id: design
    role: generate
    title: Write the architecture document
    outputs: [docs/architecture.md]
  - id: scaffold
    role: command
    title: Create the module skeleton
    depends_on: [design]
    command: "mkdir -p internal cmd"
  - id: readme
    role: template
    title: Render the README
    depends_on: [design]
    inputs: [docs/architecture.md]
    outputs: [README.md]
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if p.Name != "scaffold-service" {
		t.Errorf("name = %q, want scaffold-service", p.Name)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(p.Tasks))
	}

	ids := p.TaskIDs()
	want := []string{"design", "scaffold", "readme"}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("hint order[%d] = %s, want %s", i, ids[i], id)
		}
	}

	scaffold := p.Tasks[1]
	if scaffold.Role != "command" {
		t.Errorf("role = %q, want command", scaffold.Role)
	}
	if len(scaffold.DependsOn) != 1 || scaffold.DependsOn[0] != "design" {
		t.Errorf("depends_on = %v, want [design]", scaffold.DependsOn)
	}
}

func TestParseRejectsEmptyPlan(t *testing.T) {
	if _, err := Parse([]byte("version: 1\nname: empty\n")); err == nil {
		t.Fatal("expected error for plan with no tasks")
	}
}

func TestParseRejectsMissingID(t *testing.T) {
	data := []byte("tasks:\n  - role: command\n    title: no id\n")
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for task without id")
	}
}

func TestParseRejectsMissingRole(t *testing.T) {
	data := []byte("tasks:\n  - id: a\n    title: no role\n")
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for task without role")
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	data := []byte("tasks:\n  - id: a\n    role: command\n  - id: a\n    role: command\n")
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for duplicate ids")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(p.Tasks))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCheckDetectsCycle(t *testing.T) {
	data := []byte(`
tasks:
  - id: a
    role: command
    depends_on: [b]
  - id: b
    role: command
    depends_on: [a]
`)
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := p.Check(); err == nil {
		t.Fatal("expected cycle error from Check")
	}
}

func TestCheckAcceptsValidPlan(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := p.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}
