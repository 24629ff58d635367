package domain

import "sort"

// ResourceType — тип ресурса, передаваемого между элементами.
type ResourceType string

// Типы ресурсов.
const (
	// ResourceTypeFile — файл на диске (путь в URLOrPath).
	ResourceTypeFile ResourceType = "file"

	// ResourceTypeDatabase — база данных (URL в URLOrPath).
	ResourceTypeDatabase ResourceType = "database"

	// ResourceTypeURL — произвольный URL (веб-сервис, API).
	ResourceTypeURL ResourceType = "url"

	// ResourceTypeTransient — временный файл, который появится только
	// после выполнения элемента-источника.
	ResourceTypeTransient ResourceType = "transient_file"
)

// Resource — неизменяемое описание доступности данных.
//
// Resource передаётся от элемента к его соседям по соединениям.
// Значение никогда не мутируется на месте: любое структурное событие
// (переименование источника, применение фильтра) порождает новый Resource.
type Resource struct {
	// Type — тип ресурса.
	Type ResourceType `json:"type"`

	// Label — человекочитаемая метка ресурса. Уникальна в рамках
	// списка ресурсов одного источника.
	Label string `json:"label"`

	// URLOrPath — путь к файлу или URL базы данных.
	URLOrPath string `json:"url_or_path,omitempty"`

	// Provider — имя элемента-источника ресурса.
	Provider string `json:"provider,omitempty"`

	// Metadata — дополнительные данные (применённые фильтры и т.д.).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewFileResource создаёт файловый ресурс.
func NewFileResource(provider, path string) Resource {
	return Resource{
		Type:      ResourceTypeFile,
		Label:     path,
		URLOrPath: path,
		Provider:  provider,
	}
}

// NewTransientFileResource создаёт ресурс для файла, который появится
// после выполнения источника.
func NewTransientFileResource(provider, label, path string) Resource {
	return Resource{
		Type:      ResourceTypeTransient,
		Label:     label,
		URLOrPath: path,
		Provider:  provider,
	}
}

// NewDatabaseResource создаёт ресурс базы данных.
func NewDatabaseResource(provider, url string) Resource {
	return Resource{
		Type:      ResourceTypeDatabase,
		Label:     url,
		URLOrPath: url,
		Provider:  provider,
	}
}

// NewURLResource создаёт URL-ресурс.
func NewURLResource(provider, label, url string) Resource {
	return Resource{
		Type:      ResourceTypeURL,
		Label:     label,
		URLOrPath: url,
		Provider:  provider,
	}
}

// Clone возвращает глубокую копию ресурса.
// Используется там, где нужен "новый" ресурс на основе существующего.
func (r Resource) Clone() Resource {
	out := r
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Equal сравнивает два ресурса по типу, метке, пути, источнику
// и идентификатору фильтра. Отфильтрованные копии одного ресурса —
// разные ресурсы; прочая Metadata в сравнении не участвует.
func (r Resource) Equal(other Resource) bool {
	return r.Type == other.Type &&
		r.Label == other.Label &&
		r.URLOrPath == other.URLOrPath &&
		r.Provider == other.Provider &&
		r.FilterID() == other.FilterID()
}

// FilterID возвращает идентификатор фильтрованного выполнения ресурса;
// пустая строка у неотфильтрованных ресурсов.
func (r Resource) FilterID() string {
	if v, ok := r.Metadata["filter_id"].(string); ok {
		return v
	}
	return ""
}

// ToDict сериализует ресурс в словарь.
func (r Resource) ToDict() map[string]any {
	d := map[string]any{
		"type":  string(r.Type),
		"label": r.Label,
	}
	if r.URLOrPath != "" {
		d["url_or_path"] = r.URLOrPath
	}
	if r.Provider != "" {
		d["provider"] = r.Provider
	}
	if len(r.Metadata) > 0 {
		d["metadata"] = r.Metadata
	}
	return d
}

// ResourceFromDict восстанавливает ресурс из словаря.
func ResourceFromDict(d map[string]any) Resource {
	r := Resource{
		Type:      ResourceType(stringField(d, "type")),
		Label:     stringField(d, "label"),
		URLOrPath: stringField(d, "url_or_path"),
		Provider:  stringField(d, "provider"),
	}
	if md, ok := d["metadata"].(map[string]any); ok {
		r.Metadata = md
	}
	return r
}

// MergeResources объединяет несколько списков ресурсов в один,
// убирая дубликаты (по Equal). Порядок: первый встреченный побеждает,
// итог отсортирован по метке для детерминизма.
func MergeResources(lists ...[]Resource) []Resource {
	var merged []Resource
	for _, list := range lists {
		for _, r := range list {
			dup := false
			for _, m := range merged {
				if m.Equal(r) {
					dup = true
					break
				}
			}
			if !dup {
				merged = append(merged, r)
			}
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Provider != merged[j].Provider {
			return merged[i].Provider < merged[j].Provider
		}
		if merged[i].Label != merged[j].Label {
			return merged[i].Label < merged[j].Label
		}
		return merged[i].FilterID() < merged[j].FilterID()
	})
	return merged
}

// stringField достаёт строковое поле из словаря.
func stringField(d map[string]any, key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}
