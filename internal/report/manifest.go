package report

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/renewal-panel/internal/panel"
	"github.com/sells-group/renewal-panel/internal/regress"
)

// Manifest records what a run consumed and produced, for reproducibility.
// It deliberately carries no timestamp so identical inputs give identical
// artifacts.
type Manifest struct {
	DataPath  string   `yaml:"data_path"`
	Rows      int      `yaml:"rows"`
	Cities    int      `yaml:"cities"`
	Years     int      `yaml:"years"`
	Specs     []string `yaml:"specs"`
	Artifacts []string `yaml:"artifacts"`
}

// WriteManifest writes the run manifest to path.
func WriteManifest(dataPath string, t *panel.Table, outcomes []regress.Outcome, artifacts []string, path string) error {
	m := Manifest{
		DataPath:  dataPath,
		Rows:      t.Len(),
		Cities:    len(t.Cities()),
		Years:     len(t.Years()),
		Artifacts: artifacts,
	}
	for _, o := range outcomes {
		m.Specs = append(m.Specs, o.Spec.Name)
	}

	out, err := yaml.Marshal(&m)
	if err != nil {
		return eris.Wrap(err, "report: marshal manifest")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return eris.Wrapf(err, "report: write manifest %s", path)
	}
	return nil
}
