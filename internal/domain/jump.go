package domain

import "fmt"

// ConditionType — тип условия перехода.
type ConditionType string

// Типы условий.
const (
	// ConditionTypeIterations — цикл с фиксированным числом итераций.
	ConditionTypeIterations ConditionType = "iterations"

	// ConditionTypeOnce — переход выполняется один раз и завершает цикл.
	// Условие по умолчанию для новых переходов.
	ConditionTypeOnce ConditionType = "once"
)

// JumpCondition — условие, управляющее циклом перехода.
//
// Условие задаётся явно перечисленными типами, без произвольного кода:
// движок выполнения вычисляет его сам по счётчику итераций.
type JumpCondition struct {
	// Type — тип условия.
	Type ConditionType `json:"type"`

	// MaxIterations — число итераций цикла для ConditionTypeIterations.
	MaxIterations int `json:"max_iterations,omitempty"`
}

// Holds возвращает true, если цикл должен продолжаться после
// итерации с данным номером (счёт с нуля).
func (jc JumpCondition) Holds(iteration int) bool {
	switch jc.Type {
	case ConditionTypeIterations:
		return iteration+1 < jc.MaxIterations
	default:
		return false
	}
}

// Jump — условное обратное ребро внутри одного DAG.
//
// Переход зацикливает выполнение с элемента-источника (поздний ранг)
// обратно на элемент-приёмник (ранний ранг). Инварианты:
//   - источник и приёмник принадлежат одному слабо-связному DAG
//   - переходы не пересекаются (не более одного перехода на диапазон)
type Jump struct {
	// Source — имя элемента, с которого происходит переход назад.
	Source string `json:"source"`

	// SourcePosition — сторона источника на диаграмме.
	SourcePosition Position `json:"source_position"`

	// Destination — имя элемента, на который возвращается выполнение.
	Destination string `json:"destination"`

	// DestinationPosition — сторона приёмника.
	DestinationPosition Position `json:"destination_position"`

	// Condition — условие продолжения цикла.
	Condition JumpCondition `json:"condition"`
}

// NewJump создаёт переход с условием по умолчанию (один проход).
func NewJump(source string, srcPos Position, destination string, dstPos Position) *Jump {
	return &Jump{
		Source:              source,
		SourcePosition:      srcPos,
		Destination:         destination,
		DestinationPosition: dstPos,
		Condition:           JumpCondition{Type: ConditionTypeOnce},
	}
}

// Name возвращает человекочитаемое имя перехода.
func (j *Jump) Name() string {
	return fmt.Sprintf("jump from %s to %s", j.Source, j.Destination)
}

// HasEndpoint возвращает true, если элемент является концом перехода.
func (j *Jump) HasEndpoint(name string) bool {
	return j.Source == name || j.Destination == name
}

// RenameEndpoint переписывает концы перехода при переименовании элемента.
func (j *Jump) RenameEndpoint(oldName, newName string) {
	if j.Source == oldName {
		j.Source = newName
	}
	if j.Destination == oldName {
		j.Destination = newName
	}
}

// IsSelfJump возвращает true, если переход зацикливает элемент на себя.
// Такой переход допустим: цикл из одного элемента.
func (j *Jump) IsSelfJump() bool {
	return j.Source == j.Destination
}

// ToDict сериализует переход в словарь.
func (j *Jump) ToDict() map[string]any {
	return map[string]any{
		"from": []any{j.Source, string(j.SourcePosition)},
		"to":   []any{j.Destination, string(j.DestinationPosition)},
		"condition": map[string]any{
			"type":           string(j.Condition.Type),
			"max_iterations": j.Condition.MaxIterations,
		},
	}
}

// JumpFromDict восстанавливает переход из словаря.
func JumpFromDict(d map[string]any) (*Jump, error) {
	source, srcPos, err := endpointFromDict(d, "from")
	if err != nil {
		return nil, err
	}
	destination, dstPos, err := endpointFromDict(d, "to")
	if err != nil {
		return nil, err
	}
	j := NewJump(source, srcPos, destination, dstPos)
	if cond, ok := d["condition"].(map[string]any); ok {
		if t, ok := cond["type"].(string); ok && t != "" {
			j.Condition.Type = ConditionType(t)
		}
		switch n := cond["max_iterations"].(type) {
		case int:
			j.Condition.MaxIterations = n
		case float64:
			j.Condition.MaxIterations = int(n)
		}
	}
	return j, nil
}
