package domain

import (
	"fmt"
	"sort"
)

// Position — сторона элемента, к которой прикреплено ребро на диаграмме.
// Для ядра это непрозрачное значение: мы только храним и возвращаем его.
type Position string

// Стороны элемента.
const (
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// FilterType — тип фильтра ресурса на соединении.
type FilterType string

// Типы фильтров.
const (
	// FilterTypeScenario — сценарный фильтр базы данных.
	FilterTypeScenario FilterType = "scenario_filter"

	// FilterTypeTool — фильтр по инструменту.
	FilterTypeTool FilterType = "tool_filter"
)

// FilterSettings — настройки фильтрации ресурсов на соединении.
//
// Фильтры применяются к ресурсам баз данных при передаче вперёд:
// для каждого включённого значения фильтра соединение порождает
// отдельную отфильтрованную копию ресурса.
type FilterSettings struct {
	// AutoOnline — включать ли новые обнаруженные фильтры автоматически.
	AutoOnline bool `json:"auto_online"`

	// KnownFilters — известные фильтры:
	// метка ресурса → тип фильтра → значение → включён ли.
	KnownFilters map[string]map[FilterType]map[string]bool `json:"known_filters,omitempty"`
}

// NewFilterSettings создаёт настройки фильтрации по умолчанию.
func NewFilterSettings() FilterSettings {
	return FilterSettings{AutoOnline: true}
}

// HasFilters возвращает true, если есть хотя бы один известный фильтр.
func (fs FilterSettings) HasFilters() bool {
	for _, byType := range fs.KnownFilters {
		for _, values := range byType {
			if len(values) > 0 {
				return true
			}
		}
	}
	return false
}

// EnabledFilterValues возвращает включённые значения фильтра данного типа
// для ресурса с данной меткой, отсортированные по имени.
func (fs FilterSettings) EnabledFilterValues(label string, ft FilterType) []string {
	byType, ok := fs.KnownFilters[label]
	if !ok {
		return nil
	}
	values, ok := byType[ft]
	if !ok {
		return nil
	}
	var enabled []string
	for name, on := range values {
		if on {
			enabled = append(enabled, name)
		}
	}
	sort.Strings(enabled)
	return enabled
}

// SetFilterEnabled включает или выключает значение фильтра.
func (fs *FilterSettings) SetFilterEnabled(label string, ft FilterType, value string, enabled bool) {
	if fs.KnownFilters == nil {
		fs.KnownFilters = make(map[string]map[FilterType]map[string]bool)
	}
	byType, ok := fs.KnownFilters[label]
	if !ok {
		byType = make(map[FilterType]map[string]bool)
		fs.KnownFilters[label] = byType
	}
	values, ok := byType[ft]
	if !ok {
		values = make(map[string]bool)
		byType[ft] = values
	}
	values[value] = enabled
}

// Connection — направленное ребро между двумя элементами проекта.
//
// Соединение переносит ресурсы от источника к приёмнику и может
// фильтровать или преобразовывать их по пути. Инвариант: между
// упорядоченной парой (источник, приёмник) существует не более
// одного соединения.
type Connection struct {
	// Source — имя элемента-источника.
	Source string `json:"source"`

	// SourcePosition — сторона источника, к которой прикреплено ребро.
	SourcePosition Position `json:"source_position"`

	// Destination — имя элемента-приёмника.
	Destination string `json:"destination"`

	// DestinationPosition — сторона приёмника.
	DestinationPosition Position `json:"destination_position"`

	// Options — опции соединения (например, "use_memory_db").
	Options map[string]bool `json:"options,omitempty"`

	// FilterSettings — настройки фильтрации ресурсов.
	FilterSettings FilterSettings `json:"filter_settings"`
}

// NewConnection создаёт соединение с настройками по умолчанию.
func NewConnection(source string, srcPos Position, destination string, dstPos Position) *Connection {
	return &Connection{
		Source:              source,
		SourcePosition:      srcPos,
		Destination:         destination,
		DestinationPosition: dstPos,
		FilterSettings:      NewFilterSettings(),
	}
}

// Name возвращает человекочитаемое имя соединения.
func (c *Connection) Name() string {
	return fmt.Sprintf("from %s to %s", c.Source, c.Destination)
}

// HasEndpoint возвращает true, если элемент является источником
// или приёмником соединения.
func (c *Connection) HasEndpoint(name string) bool {
	return c.Source == name || c.Destination == name
}

// RenameEndpoint переписывает концы соединения при переименовании элемента.
func (c *Connection) RenameEndpoint(oldName, newName string) {
	if c.Source == oldName {
		c.Source = newName
	}
	if c.Destination == oldName {
		c.Destination = newName
	}
}

// ConvertResources применяет настройки соединения к ресурсам,
// передаваемым вперёд.
//
// Ресурсы баз данных с включёнными сценарными фильтрами размножаются:
// по одной копии на сценарий, с именем сценария в метаданных и в
// идентификаторе фильтра. Остальные ресурсы проходят без изменений.
func (c *Connection) ConvertResources(resources []Resource) []Resource {
	out := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if r.Type != ResourceTypeDatabase {
			out = append(out, r)
			continue
		}
		scenarios := c.FilterSettings.EnabledFilterValues(r.Label, FilterTypeScenario)
		if len(scenarios) == 0 {
			out = append(out, r)
			continue
		}
		for _, scenario := range scenarios {
			filtered := r.Clone()
			if filtered.Metadata == nil {
				filtered.Metadata = make(map[string]any, 2)
			}
			filtered.Metadata["scenario"] = scenario
			filtered.Metadata["filter_id"] = FilterID(scenario, r.Provider)
			out = append(out, filtered)
		}
	}
	return out
}

// Key возвращает упорядоченную пару (источник, приёмник) для проверки
// уникальности соединения.
func (c *Connection) Key() [2]string {
	return [2]string{c.Source, c.Destination}
}

// ToDict сериализует соединение в словарь.
func (c *Connection) ToDict() map[string]any {
	d := map[string]any{
		"from": []any{c.Source, string(c.SourcePosition)},
		"to":   []any{c.Destination, string(c.DestinationPosition)},
	}
	if len(c.Options) > 0 {
		opts := make(map[string]any, len(c.Options))
		for k, v := range c.Options {
			opts[k] = v
		}
		d["options"] = opts
	}
	fs := map[string]any{"auto_online": c.FilterSettings.AutoOnline}
	if len(c.FilterSettings.KnownFilters) > 0 {
		known := make(map[string]any, len(c.FilterSettings.KnownFilters))
		for label, byType := range c.FilterSettings.KnownFilters {
			types := make(map[string]any, len(byType))
			for ft, values := range byType {
				vals := make(map[string]any, len(values))
				for name, on := range values {
					vals[name] = on
				}
				types[string(ft)] = vals
			}
			known[label] = types
		}
		fs["known_filters"] = known
	}
	d["filter_settings"] = fs
	return d
}

// ConnectionFromDict восстанавливает соединение из словаря.
func ConnectionFromDict(d map[string]any) (*Connection, error) {
	source, srcPos, err := endpointFromDict(d, "from")
	if err != nil {
		return nil, err
	}
	destination, dstPos, err := endpointFromDict(d, "to")
	if err != nil {
		return nil, err
	}
	c := NewConnection(source, srcPos, destination, dstPos)
	if opts, ok := d["options"].(map[string]any); ok {
		c.Options = make(map[string]bool, len(opts))
		for k, v := range opts {
			if b, ok := v.(bool); ok {
				c.Options[k] = b
			}
		}
	}
	if fs, ok := d["filter_settings"].(map[string]any); ok {
		if auto, ok := fs["auto_online"].(bool); ok {
			c.FilterSettings.AutoOnline = auto
		}
		if known, ok := fs["known_filters"].(map[string]any); ok {
			for label, rawTypes := range known {
				types, ok := rawTypes.(map[string]any)
				if !ok {
					continue
				}
				for ft, rawValues := range types {
					values, ok := rawValues.(map[string]any)
					if !ok {
						continue
					}
					for name, rawOn := range values {
						on, _ := rawOn.(bool)
						c.FilterSettings.SetFilterEnabled(label, FilterType(ft), name, on)
					}
				}
			}
		}
	}
	return c, nil
}

// FilterID строит идентификатор фильтрованного выполнения:
// "<значение фильтра> - <источник>".
func FilterID(filterValue, provider string) string {
	return filterValue + " - " + provider
}

// endpointFromDict разбирает пару [имя, позиция] из словаря.
func endpointFromDict(d map[string]any, key string) (string, Position, error) {
	raw, ok := d[key].([]any)
	if !ok || len(raw) != 2 {
		return "", "", fmt.Errorf("connection dict: malformed %q endpoint", key)
	}
	name, ok := raw[0].(string)
	if !ok || name == "" {
		return "", "", fmt.Errorf("connection dict: %q endpoint has no name", key)
	}
	pos, ok := raw[1].(string)
	if !ok {
		return "", "", fmt.Errorf("connection dict: %q endpoint has no position", key)
	}
	return name, Position(pos), nil
}
