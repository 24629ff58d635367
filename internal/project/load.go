package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/execution"
)

// ProjectFileName — имя файла описания проекта в каталоге проекта.
const ProjectFileName = "project.json"

// projectFile — сериализуемая форма проекта.
type projectFile struct {
	Project        projectMeta                 `json:"project"`
	Items          map[string]map[string]any   `json:"items"`
	Connections    []map[string]any            `json:"connections,omitempty"`
	Jumps          []map[string]any            `json:"jumps,omitempty"`
	Specifications map[string][]map[string]any `json:"specifications,omitempty"`
}

// projectMeta — метаданные проекта.
type projectMeta struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings,omitempty"`
	JobID    string         `json:"job_id,omitempty"`
	Remote   *remoteMeta    `json:"remote,omitempty"`
}

// remoteMeta — сохранённые настройки удалённого выполнения.
type remoteMeta struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// Load читает проект из каталога dir.
//
// Элементы восстанавливаются универсальными (domain.GenericItem);
// после загрузки ранги пересчитаны, ресурсы распространены. Файл
// с циклическим подграфом загружается: цикл помечается рангом -1
// и блокирует только выполнение, не редактирование.
func Load(dir string, opts ...Option) (*Project, error) {
	path := filepath.Join(dir, ProjectFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	var pf projectFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("load project %s: %w", path, err)
	}

	p := New(pf.Project.Name, dir, opts...)
	if pf.Project.Settings != nil {
		p.settings = pf.Project.Settings
	}
	p.jobID = pf.Project.JobID
	if r := pf.Project.Remote; r != nil {
		p.execSettings.RemoteEnabled = r.Enabled
		if r.Host != "" {
			p.execSettings.Host = r.Host
		}
		if r.Port != 0 {
			p.execSettings.Port = r.Port
		}
	}

	for name, d := range pf.Items {
		if err := ValidateItemName(name); err != nil {
			return nil, fmt.Errorf("load project %s: %w", path, err)
		}
		if _, ok := p.items[name]; ok {
			return nil, fmt.Errorf("load project %s: %w: %q", path, ErrItemExists, name)
		}
		p.items[name] = domain.GenericItemFromDict(name, d)
	}
	for _, d := range pf.Connections {
		c, err := domain.ConnectionFromDict(d)
		if err != nil {
			return nil, fmt.Errorf("load project %s: %w", path, err)
		}
		p.connections = append(p.connections, c)
	}
	for _, d := range pf.Jumps {
		j, err := domain.JumpFromDict(d)
		if err != nil {
			return nil, fmt.Errorf("load project %s: %w", path, err)
		}
		p.jumps = append(p.jumps, j)
	}
	if pf.Specifications != nil {
		p.specs = pf.Specifications
	}

	p.refreshRanksLocked()
	p.propagateLocked()
	return p, nil
}

// Save записывает проект в его каталог.
func (p *Project) Save() error {
	p.mu.Lock()
	pf := projectFile{
		Project: projectMeta{
			Name:     p.name,
			Settings: p.settings,
			JobID:    p.jobID,
		},
		Items:          make(map[string]map[string]any, len(p.items)),
		Specifications: p.specs,
	}
	if p.execSettings.RemoteEnabled || p.execSettings.Host != "" {
		pf.Project.Remote = &remoteMeta{
			Enabled: p.execSettings.RemoteEnabled,
			Host:    p.execSettings.Host,
			Port:    p.execSettings.Port,
		}
	}
	for name, item := range p.items {
		pf.Items[name] = item.StateDict()
	}
	for _, c := range p.connections {
		pf.Connections = append(pf.Connections, c.ToDict())
	}
	for _, j := range p.jumps {
		pf.Jumps = append(pf.Jumps, j.ToDict())
	}
	dir := p.dir
	p.mu.Unlock()

	raw, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	path := filepath.Join(dir, ProjectFileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// ExecutionSettings возвращает настройки движка выполнения проекта.
func (p *Project) ExecutionSettings() execution.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.execSettings
}

// SetExecutionSettings заменяет настройки движка выполнения.
func (p *Project) SetExecutionSettings(s execution.Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execSettings = s
}
