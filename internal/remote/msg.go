package remote

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Команды проводного протокола.
const (
	CommandPing                 = "ping"
	CommandPrepareExecution     = "prepare_execution"
	CommandStartExecution       = "start_execution"
	CommandStopExecution        = "stop_execution"
	CommandAnswerPrompt         = "answer_prompt"
	CommandExecuteInPersistent  = "execute_in_persistent"
	CommandRetrieveProject      = "retrieve_project"
	CommandRemoveProject        = "remove_project"
)

// EndOfFiles — сентинел конца передачи файлов по PULL-сокету.
const EndOfFiles = "END"

// ServerMessage — одно сообщение проводного протокола.
type ServerMessage struct {
	// Command — команда протокола.
	Command string `json:"command"`

	// ID — идентификатор сообщения. Для ping — корреляционный id,
	// для остальных команд — id задания (job id).
	ID string `json:"id"`

	// Data — полезная нагрузка в JSON.
	Data string `json:"data"`

	// Filenames — имена приложенных файлов; содержимое каждого файла
	// идёт отдельным сырым фреймом вслед за заголовком.
	Filenames []string `json:"files,omitempty"`
}

// Attachment — приложенный файл.
type Attachment struct {
	// Name — имя файла в сообщении.
	Name string

	// Data — содержимое.
	Data []byte
}

// NewServerMessage создаёт сообщение без приложений.
func NewServerMessage(command, id, data string) *ServerMessage {
	return &ServerMessage{Command: command, ID: id, Data: data}
}

// ToFrames сериализует сообщение в мультифреймовый вид:
// фрейм 0 — JSON-заголовок, далее — содержимое файлов в порядке имён.
func (m *ServerMessage) ToFrames(attachments []Attachment) ([][]byte, error) {
	sort.Slice(attachments, func(i, j int) bool {
		return attachments[i].Name < attachments[j].Name
	})
	m.Filenames = m.Filenames[:0]
	for _, a := range attachments {
		m.Filenames = append(m.Filenames, a.Name)
	}

	header, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal server message: %w", err)
	}

	frames := make([][]byte, 0, 1+len(attachments))
	frames = append(frames, header)
	for _, a := range attachments {
		frames = append(frames, a.Data)
	}
	return frames, nil
}

// ParseServerMessage восстанавливает сообщение и приложения из фреймов.
func ParseServerMessage(frames [][]byte) (*ServerMessage, []Attachment, error) {
	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("empty server message")
	}
	var m ServerMessage
	if err := json.Unmarshal(frames[0], &m); err != nil {
		return nil, nil, fmt.Errorf("unmarshal server message header: %w", err)
	}
	if len(frames)-1 != len(m.Filenames) {
		return nil, nil, fmt.Errorf("server message with %d files but %d data frames",
			len(m.Filenames), len(frames)-1)
	}
	attachments := make([]Attachment, 0, len(m.Filenames))
	for i, name := range m.Filenames {
		attachments = append(attachments, Attachment{Name: name, Data: frames[i+1]})
	}
	return &m, attachments, nil
}

// DataDict разбирает полезную нагрузку сообщения как словарь.
func (m *ServerMessage) DataDict() (map[string]any, error) {
	if m.Data == "" {
		return map[string]any{}, nil
	}
	var d map[string]any
	if err := json.Unmarshal([]byte(m.Data), &d); err != nil {
		return nil, fmt.Errorf("unmarshal message data: %w", err)
	}
	return d, nil
}

// marshalData сериализует словарь в поле Data.
func marshalData(d map[string]any) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal message data: %w", err)
	}
	return string(b), nil
}
