package project

import "github.com/conveyorhq/conveyor/internal/domain"

// resourceCache — кэш ресурсов элементов на один проход распространения.
//
// Элемент может оказаться соседом многих других; кэш гарантирует, что
// его ресурсный список вычисляется за проход ровно один раз.
type resourceCache struct {
	forward  map[string][]domain.Resource
	backward map[string][]domain.Resource
}

func newResourceCache() *resourceCache {
	return &resourceCache{
		forward:  make(map[string][]domain.Resource),
		backward: make(map[string][]domain.Resource),
	}
}

// Forward возвращает ресурсы элемента для преемников.
func (rc *resourceCache) Forward(item domain.ProjectItem) []domain.Resource {
	name := item.Name()
	if cached, ok := rc.forward[name]; ok {
		return cached
	}
	resources := item.ResourcesForDirectSuccessors()
	rc.forward[name] = resources
	return resources
}

// Backward возвращает ресурсы элемента для предшественников.
func (rc *resourceCache) Backward(item domain.ProjectItem) []domain.Resource {
	name := item.Name()
	if cached, ok := rc.backward[name]; ok {
		return cached
	}
	resources := item.ResourcesForDirectPredecessors()
	rc.backward[name] = resources
	return resources
}

// propagateLocked пересчитывает и доставляет каждому элементу
// объединённые списки ресурсов его соседей.
//
// Вперёд ресурсы проходят через преобразование соединения (фильтры,
// размножение по сценариям), назад — как есть. Дубликаты схлопываются
// при слиянии. Вызывается после каждой структурной правки.
func (p *Project) propagateLocked() {
	cache := newResourceCache()

	for name, item := range p.items {
		var upstream [][]domain.Resource
		var downstream [][]domain.Resource

		for _, c := range p.connections {
			if c.Destination == name {
				if src, ok := p.items[c.Source]; ok {
					upstream = append(upstream, c.ConvertResources(cache.Forward(src)))
				}
			}
			if c.Source == name {
				if dst, ok := p.items[c.Destination]; ok {
					downstream = append(downstream, cache.Backward(dst))
				}
			}
		}

		item.UpstreamResourcesUpdated(domain.MergeResources(upstream...))
		item.DownstreamResourcesUpdated(domain.MergeResources(downstream...))
	}
}
