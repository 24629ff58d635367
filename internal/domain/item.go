package domain

// ProjectItem — контракт элемента проекта.
//
// Реализации элементов (хранилища данных, инструменты, импортёры и т.д.)
// живут вне ядра; ядро работает с ними единообразно: спрашивает, какие
// ресурсы элемент предоставляет соседям, и доставляет ему ресурсы соседей.
type ProjectItem interface {
	// Name возвращает уникальное имя элемента в проекте.
	Name() string

	// SetName меняет имя элемента. Вызывается только проектом
	// при переименовании; идентичность элемента сохраняется.
	SetName(name string)

	// Type возвращает тег типа элемента.
	Type() string

	// StateDict возвращает сериализуемое состояние элемента.
	StateDict() map[string]any

	// ResourcesForDirectPredecessors возвращает ресурсы, которые элемент
	// предоставляет своим прямым предшественникам.
	ResourcesForDirectPredecessors() []Resource

	// ResourcesForDirectSuccessors возвращает ресурсы, которые элемент
	// предоставляет своим прямым преемникам.
	ResourcesForDirectSuccessors() []Resource

	// UpstreamResourcesUpdated доставляет элементу полный объединённый
	// список ресурсов от всех его предшественников.
	UpstreamResourcesUpdated(resources []Resource)

	// DownstreamResourcesUpdated доставляет элементу полный объединённый
	// список ресурсов от всех его преемников.
	DownstreamResourcesUpdated(resources []Resource)

	// ReplaceResourcesFromUpstream доставляет диффовое обновление:
	// old[i] заменяется на new[i]. Используется при переименовании
	// источника, чтобы приёмник поменял ссылки, а не пересобрал состояние.
	ReplaceResourcesFromUpstream(old, new []Resource)

	// ReplaceResourcesFromDownstream — то же для ресурсов из преемников.
	ReplaceResourcesFromDownstream(old, new []Resource)
}

// GenericItem — универсальный элемент, собираемый из словаря.
//
// Используется безголовым режимом и тестами: поведение выполнения
// у него отсутствует, но ресурсный контракт полноценный.
type GenericItem struct {
	name  string
	typ   string
	state map[string]any

	// Последние полученные обновления — для инспекции.
	upstream   []Resource
	downstream []Resource

	// replacements — количество полученных диффовых обновлений.
	replacements int
}

// NewGenericItem создаёт элемент из типа и словаря состояния.
func NewGenericItem(name, typ string, state map[string]any) *GenericItem {
	if state == nil {
		state = make(map[string]any)
	}
	return &GenericItem{name: name, typ: typ, state: state}
}

// GenericItemFromDict восстанавливает элемент из словаря проекта.
// Тег типа хранится в поле "type", остальные поля — состояние.
func GenericItemFromDict(name string, d map[string]any) *GenericItem {
	typ := stringField(d, "type")
	state := make(map[string]any, len(d))
	for k, v := range d {
		if k == "type" {
			continue
		}
		state[k] = v
	}
	return NewGenericItem(name, typ, state)
}

// Name возвращает имя элемента.
func (g *GenericItem) Name() string { return g.name }

// SetName меняет имя элемента.
func (g *GenericItem) SetName(name string) { g.name = name }

// Type возвращает тег типа.
func (g *GenericItem) Type() string { return g.typ }

// StateDict возвращает состояние элемента вместе с тегом типа.
func (g *GenericItem) StateDict() map[string]any {
	d := make(map[string]any, len(g.state)+1)
	d["type"] = g.typ
	for k, v := range g.state {
		d[k] = v
	}
	return d
}

// ResourcesForDirectSuccessors собирает ресурсы из состояния:
// "files" — список путей, "url" — адрес базы данных.
func (g *GenericItem) ResourcesForDirectSuccessors() []Resource {
	var out []Resource
	if files, ok := g.state["files"].([]any); ok {
		for _, f := range files {
			if path, ok := f.(string); ok {
				out = append(out, NewFileResource(g.name, path))
			}
		}
	}
	if url := stringField(g.state, "url"); url != "" {
		out = append(out, NewDatabaseResource(g.name, url))
	}
	return out
}

// ResourcesForDirectPredecessors возвращает ресурсы для предшественников.
// Универсальный элемент предоставляет назад только базу данных,
// если она задана: предшественники могут писать в неё.
func (g *GenericItem) ResourcesForDirectPredecessors() []Resource {
	if url := stringField(g.state, "url"); url != "" {
		return []Resource{NewDatabaseResource(g.name, url)}
	}
	return nil
}

// UpstreamResourcesUpdated запоминает объединённый список от предшественников.
func (g *GenericItem) UpstreamResourcesUpdated(resources []Resource) {
	g.upstream = resources
}

// DownstreamResourcesUpdated запоминает объединённый список от преемников.
func (g *GenericItem) DownstreamResourcesUpdated(resources []Resource) {
	g.downstream = resources
}

// ReplaceResourcesFromUpstream заменяет ресурсы по диффу old → new.
func (g *GenericItem) ReplaceResourcesFromUpstream(old, new []Resource) {
	g.upstream = replaceResources(g.upstream, old, new)
	g.replacements++
}

// ReplaceResourcesFromDownstream заменяет ресурсы по диффу old → new.
func (g *GenericItem) ReplaceResourcesFromDownstream(old, new []Resource) {
	g.downstream = replaceResources(g.downstream, old, new)
	g.replacements++
}

// UpstreamResources возвращает последний полученный список от предшественников.
func (g *GenericItem) UpstreamResources() []Resource { return g.upstream }

// DownstreamResources возвращает последний полученный список от преемников.
func (g *GenericItem) DownstreamResources() []Resource { return g.downstream }

// ReplacementCount возвращает число полученных диффовых обновлений.
func (g *GenericItem) ReplacementCount() int { return g.replacements }

// replaceResources применяет дифф old[i] → new[i] к списку current.
// Ресурсы из old, которых нет в current, игнорируются.
func replaceResources(current, old, new []Resource) []Resource {
	out := make([]Resource, len(current))
	copy(out, current)
	for i := range old {
		if i >= len(new) {
			break
		}
		for j := range out {
			if out[j].Equal(old[i]) {
				out[j] = new[i]
			}
		}
	}
	return out
}
