package console

import "strings"

// isCompleteText решает, является ли текст законченной командой.
//
// Эвристика, общая для скобочных языков:
//   - незакрытые (), [], {} — не закончено
//   - незакрытая строка в кавычках — не закончено
//   - завершающий "\" — явное продолжение строки
//   - строка, оканчивающаяся на ":", открывает блок — ждём тело
//   - пустая строка после блока закрывает его
func isCompleteText(text string) bool {
	trimmed := strings.TrimRight(text, " \t")
	if trimmed == "" {
		return true
	}
	if strings.HasSuffix(trimmed, "\\") {
		return false
	}

	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(' || ch == '[' || ch == '{':
			depth++
		case ch == ')' || ch == ']' || ch == '}':
			depth--
		}
	}
	if depth > 0 || quote != 0 {
		return false
	}

	// Заголовок блока: тело ещё не введено.
	lines := strings.Split(trimmed, "\n")
	last := strings.TrimRight(lines[len(lines)-1], " \t")
	if strings.HasSuffix(last, ":") {
		return false
	}
	// Внутри блока команда заканчивается пустой строкой.
	if len(lines) > 1 && strings.HasSuffix(strings.TrimRight(lines[0], " \t"), ":") {
		return last == ""
	}
	return true
}
