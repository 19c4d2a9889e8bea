package generate

import (
	"context"
	"strings"

	figd "github.com/Paranoid-AF/figd"
)

// ProjectGenerator suggests whole commands derived from the project layout
// of the working directory: build tool invocations, manifest targets and
// common git operations.
type ProjectGenerator struct {
	Cache *DirCache
}

const maxTargetSuggestions = 5

func (g *ProjectGenerator) Name() string { return "project" }

func (g *ProjectGenerator) Generate(ctx context.Context, in Input) ([]figd.Candidate, error) {
	if g.Cache == nil || in.Snapshot.Cwd == "" {
		return nil, nil
	}
	entry := g.Cache.GetOrGather(ctx, in.Snapshot.Cwd)
	if entry == nil {
		return nil, nil
	}

	typed := strings.TrimLeft(in.Line[:in.Cursor], " \t")

	var out []figd.Candidate
	add := func(insert string, category figd.Category, score float64) {
		if !strings.HasPrefix(insert, typed) || insert == typed {
			return
		}
		out = append(out, figd.Candidate{
			Display:  insert,
			Insert:   insert,
			Category: category,
			Score:    score,
			Meta:     map[string]string{"project_type": entry.ProjectType},
		})
	}

	switch entry.ProjectType {
	case "rust":
		add("cargo build", figd.CategoryProject, 0.6)
		add("cargo run", figd.CategoryProject, 0.6)
		add("cargo test", figd.CategoryProject, 0.6)
		add("cargo check", figd.CategoryProject, 0.5)
		for i, bin := range entry.CargoBins {
			if i >= maxTargetSuggestions {
				break
			}
			add("cargo run --bin "+bin, figd.CategoryProject, 0.5)
		}
	case "node":
		pm := entry.PackageManager
		if pm == "" {
			pm = "npm"
		}
		add(pm+" install", figd.CategoryProject, 0.6)
		for i, script := range entry.Scripts {
			if i >= maxTargetSuggestions {
				break
			}
			add(pm+" run "+script, figd.CategoryProject, 0.6)
		}
	case "go":
		add("go build ./...", figd.CategoryProject, 0.6)
		add("go test ./...", figd.CategoryProject, 0.6)
		add("go vet ./...", figd.CategoryProject, 0.5)
	case "python":
		add("python -m venv .venv", figd.CategoryProject, 0.5)
		add("pip install -r requirements.txt", figd.CategoryProject, 0.6)
	}
	for i, target := range entry.MakeTargets {
		if i >= maxTargetSuggestions {
			break
		}
		add("make "+target, figd.CategoryProject, 0.6)
	}
	if entry.HasDockerfile {
		add("docker build .", figd.CategoryProject, 0.5)
	}

	if entry.GitBranch != "" {
		add("git status", figd.CategoryGit, 0.55)
		add("git pull", figd.CategoryGit, 0.55)
		add("git push", figd.CategoryGit, 0.55)
		add("git push origin "+entry.GitBranch, figd.CategoryGit, 0.5)
	}
	return out, nil
}
