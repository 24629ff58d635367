package engine

import (
	"encoding/json"
	"fmt"
)

// ModuleName — фиксированный тег модуля во входном контракте движка.
// Сервер выполнения отказывает входам с незнакомым тегом.
const ModuleName = "conveyor_items"

// Input — входной контракт движка выполнения.
//
// Структура собирается проектом для каждого исполняемого DAG и передаётся
// либо локальному движку напрямую, либо удалённому серверу в JSON.
type Input struct {
	// Items — состояния элементов DAG: имя → словарь.
	Items map[string]map[string]any `json:"items"`

	// Specifications — спецификации по типам элементов. Каждая несёт
	// путь к собственному файлу определения.
	Specifications map[string][]map[string]any `json:"specifications"`

	// Connections — словари соединений внутри DAG.
	Connections []map[string]any `json:"connections"`

	// Jumps — словари переходов внутри DAG.
	Jumps []map[string]any `json:"jumps"`

	// ExecutionPermits — разрешения на выполнение: имя → bool.
	// false означает "присутствует в DAG, но не выполняется".
	ExecutionPermits map[string]bool `json:"execution_permits"`

	// ItemsModule — тег модуля, всегда ModuleName.
	ItemsModule string `json:"items_module"`

	// Settings — настройки приложения, видимые элементам.
	Settings map[string]any `json:"settings"`

	// ProjectDir — каталог проекта.
	ProjectDir string `json:"project_dir"`
}

// NewInput создаёт пустой входной контракт с проставленным тегом модуля.
func NewInput(projectDir string) *Input {
	return &Input{
		Items:            make(map[string]map[string]any),
		Specifications:   make(map[string][]map[string]any),
		ExecutionPermits: make(map[string]bool),
		ItemsModule:      ModuleName,
		Settings:         make(map[string]any),
		ProjectDir:       projectDir,
	}
}

// Validate проверяет согласованность входа перед запуском движка.
func (in *Input) Validate() error {
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrEngineInit)
	}
	if in.ItemsModule != ModuleName {
		return fmt.Errorf("%w: unexpected items module %q", ErrEngineInit, in.ItemsModule)
	}
	for name := range in.ExecutionPermits {
		if _, ok := in.Items[name]; !ok {
			return fmt.Errorf("%w: permit for unknown item %q", ErrEngineInit, name)
		}
	}
	return nil
}

// ToJSON сериализует вход для передачи по проводу.
func (in *Input) ToJSON() (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal engine input: %w", err)
	}
	return string(b), nil
}

// InputFromJSON восстанавливает вход из JSON.
func InputFromJSON(data string) (*Input, error) {
	var in Input
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("unmarshal engine input: %w", err)
	}
	return &in, nil
}
