package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nickmessing/firemodel/internal/cli/ui"
	"github.com/nickmessing/firemodel/internal/orm/schema"
)

// NewModelsCommand creates the models command
func NewModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models [model]",
		Short: "List configured models or describe one",
		Long: `List the models declared in firemodel.yaml, or describe the properties,
relationships and indexes of one model.

The database is not contacted.`,
		Example: `  # List models
  firemodel models

  # Describe one model
  firemodel models Person --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runModels,
	}
}

// loadRegistry registers and validates the configured models
func loadRegistry() (*schema.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	builders, err := cfg.Builders()
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry()
	for _, b := range builders {
		def, err := b.Build()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	knownModels = registry.List()
	return registry, nil
}

type modelSummary struct {
	Name          string `json:"name"`
	Plural        string `json:"plural"`
	Properties    int    `json:"properties"`
	Relationships int    `json:"relationships"`
	Audit         bool   `json:"audit"`
}

type propertyInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	PushKey bool   `json:"pushKey,omitempty"`
	Desc    string `json:"desc,omitempty"`
}

type relationshipInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Model   string `json:"model"`
	Inverse string `json:"inverse,omitempty"`
}

type indexInfo struct {
	Name   string `json:"name"`
	Unique bool   `json:"unique,omitempty"`
}

type modelDetail struct {
	Name          string             `json:"name"`
	ModelName     string             `json:"modelName"`
	Plural        string             `json:"plural"`
	DBOffset      string             `json:"dbOffset,omitempty"`
	LocalOffset   string             `json:"localOffset,omitempty"`
	Audit         bool               `json:"audit"`
	Properties    []propertyInfo     `json:"properties"`
	Relationships []relationshipInfo `json:"relationships"`
	Indexes       []indexInfo        `json:"indexes"`
}

func runModels(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		s, err := registry.Resolve(args[0])
		if err != nil {
			return err
		}
		detail := describeModel(s)
		if jsonOutput {
			return printJSON(out, detail)
		}
		renderModel(out, detail)
		return nil
	}

	names := registry.List()
	summaries := make([]modelSummary, 0, len(names))
	for _, name := range names {
		s, err := registry.Resolve(name)
		if err != nil {
			return err
		}
		summaries = append(summaries, modelSummary{
			Name:          name,
			Plural:        s.Plural(),
			Properties:    len(s.Properties()),
			Relationships: len(s.Relationships()),
			Audit:         s.Audit(),
		})
	}

	if jsonOutput {
		return printJSON(out, summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(out, ui.Info("No models are declared in firemodel.yaml", noColor))
		return nil
	}

	table := ui.NewTable(out, []string{"MODEL", "PLURAL", "PROPERTIES", "RELATIONSHIPS", "AUDIT"}, &ui.TableOptions{NoColor: noColor})
	for _, m := range summaries {
		table.AddRow(m.Name, m.Plural, strconv.Itoa(m.Properties), strconv.Itoa(m.Relationships), strconv.FormatBool(m.Audit))
	}
	table.Render()
	return nil
}

func describeModel(s *schema.EffectiveSchema) modelDetail {
	detail := modelDetail{
		Name:          s.Name(),
		ModelName:     s.ModelName(),
		Plural:        s.Plural(),
		DBOffset:      s.DBOffset(),
		LocalOffset:   s.LocalOffset(),
		Audit:         s.Audit(),
		Properties:    []propertyInfo{},
		Relationships: []relationshipInfo{},
		Indexes:       []indexInfo{},
	}
	for _, p := range s.Properties() {
		detail.Properties = append(detail.Properties, propertyInfo{
			Name:    p.Property,
			Type:    p.Type.String(),
			PushKey: p.PushKey,
			Desc:    p.Desc,
		})
	}
	for _, r := range s.Relationships() {
		detail.Relationships = append(detail.Relationships, relationshipInfo{
			Name:    r.Property,
			Type:    r.RelType.String(),
			Model:   r.FKModelName,
			Inverse: r.Inverse,
		})
	}
	for _, idx := range s.Indexes() {
		detail.Indexes = append(detail.Indexes, indexInfo{Name: idx.Property, Unique: idx.IsUniqueIndex})
	}
	return detail
}

func renderModel(out io.Writer, m modelDetail) {
	ui.Header(out, m.Name, noColor)
	kv := ui.NewKeyValueTable(out, noColor)
	kv.AddRow("Plural", m.Plural)
	if m.DBOffset != "" {
		kv.AddRow("DB offset", m.DBOffset)
	}
	if m.LocalOffset != "" {
		kv.AddRow("Local offset", m.LocalOffset)
	}
	kv.AddRow("Audit", strconv.FormatBool(m.Audit))
	kv.Render()

	if len(m.Properties) > 0 {
		fmt.Fprintln(out)
		table := ui.NewTable(out, []string{"PROPERTY", "TYPE", "PUSH KEY", "DESCRIPTION"}, &ui.TableOptions{NoColor: noColor})
		for _, p := range m.Properties {
			pushKey := ""
			if p.PushKey {
				pushKey = "yes"
			}
			table.AddRow(p.Name, p.Type, pushKey, p.Desc)
		}
		table.Render()
	}

	if len(m.Relationships) > 0 {
		fmt.Fprintln(out)
		table := ui.NewTable(out, []string{"RELATIONSHIP", "TYPE", "MODEL", "INVERSE"}, &ui.TableOptions{NoColor: noColor})
		for _, r := range m.Relationships {
			table.AddRow(r.Name, r.Type, r.Model, r.Inverse)
		}
		table.Render()
	}

	if len(m.Indexes) > 0 {
		fmt.Fprintln(out)
		table := ui.NewTable(out, []string{"INDEX", "UNIQUE"}, &ui.TableOptions{NoColor: noColor})
		for _, idx := range m.Indexes {
			table.AddRow(idx.Name, strconv.FormatBool(idx.Unique))
		}
		table.Render()
	}
}
