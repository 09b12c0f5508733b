package enrich

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"mrsync/pkg/config"
	"mrsync/pkg/errors"
	"mrsync/pkg/models"
)

// SquadMap maps a numeric GitLab project ID to the owning squad
type SquadMap map[string]string

// Lookup returns the squad of a project given its global or numeric ID
func (m SquadMap) Lookup(projectID string) (string, bool) {
	squad, ok := m[models.Digits(projectID)]
	return squad, ok && squad != ""
}

// LoadSquads builds the squad map from the configured file and the inline
// mapping; inline entries win. An empty result is a config error.
func LoadSquads(cfg config.SquadsConfig) (SquadMap, error) {
	squads := make(SquadMap)

	if cfg.File != "" {
		fromFile, err := ReadSquadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		for id, squad := range fromFile {
			squads[id] = squad
		}
	}

	for id, squad := range cfg.Mapping {
		if key := models.Digits(id); key != "" {
			squads[key] = strings.TrimSpace(squad)
		}
	}

	if len(squads) == 0 {
		return nil, errors.Configf("squad mapping is empty or could not be retrieved")
	}
	return squads, nil
}

// ReadSquadFile reads a CSV (project_id,squad) or YAML (id: squad) file
func ReadSquadFile(path string) (SquadMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Configf("failed to read squad file %s: %v", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseSquadYAML(data, path)
	default:
		return parseSquadCSV(data, path)
	}
}

func parseSquadCSV(data []byte, path string) (SquadMap, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	squads := make(SquadMap)
	for line := 1; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Configf("failed to parse squad file %s: %v", path, err)
		}
		if len(record) < 2 {
			continue
		}
		id := models.Digits(record[0])
		if id == "" {
			// header row or a label without a project id
			continue
		}
		squads[id] = strings.TrimSpace(record[1])
	}
	return squads, nil
}

func parseSquadYAML(data []byte, path string) (SquadMap, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Configf("failed to parse squad file %s: %v", path, err)
	}

	squads := make(SquadMap)
	if len(doc.Content) == 0 {
		return squads, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Configf("squad file %s must be a mapping of project id to squad", path)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := models.Digits(root.Content[i].Value)
		if id == "" {
			continue
		}
		squads[id] = strings.TrimSpace(root.Content[i+1].Value)
	}
	return squads, nil
}

// WriteSquadTemplate writes a project_id,squad CSV skeleton, keeping any
// squad already known for a project.
func WriteSquadTemplate(w io.Writer, projects []Project, known SquadMap) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"project_id", "squad", "project"}); err != nil {
		return err
	}
	for _, p := range projects {
		squad := known[p.ID]
		if err := cw.Write([]string{p.ID, squad, p.Path}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write squad template: %w", err)
	}
	return nil
}

// Project is the minimal project info used for squad templates
type Project struct {
	ID   string
	Path string
}
