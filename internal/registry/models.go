// Package registry derives the set of models the worker depends on from configuration.
package registry

import (
	"strings"

	"workflowd/internal/config"
	"workflowd/pkg/types"
)

// Roles lists the configured model for each processing role, in a stable order.
func Roles(cfg config.Config) []types.ModelRole {
	return []types.ModelRole{
		{Role: "visao", Model: cfg.ModelVisao},
		{Role: "conversacao", Model: cfg.ModelConversacao},
		{Role: "resumo", Model: cfg.ModelResumo},
		{Role: "transcricao", Model: cfg.ModelTranscricao},
		{Role: "embeddings", Model: cfg.ModelEmbeddings},
	}
}

// Required returns the model identifiers the runtime must carry.
// An explicit RequiredModels list wins; otherwise the role models are used.
// Blank entries are dropped and duplicates keep their first position.
func Required(cfg config.Config) []string {
	src := cfg.RequiredModels
	if len(src) == 0 {
		for _, r := range Roles(cfg) {
			src = append(src, r.Model)
		}
	}
	return dedupe(src)
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
