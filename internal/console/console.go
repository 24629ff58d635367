package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// Ошибки реестра консолей.
var (
	// ErrConsoleNotFound — консоль с таким ключом не запущена.
	ErrConsoleNotFound = errors.New("persistent console not found")

	// ErrConsoleBusy — консоль уже выполняет команду.
	ErrConsoleBusy = errors.New("persistent console is busy")
)

// Key — составной ключ постоянной консоли.
type Key struct {
	// Item — имя элемента-владельца.
	Item string

	// FilterID — идентификатор фильтрованного выполнения
	// (пустой для нефильтрованного).
	FilterID string
}

// String возвращает ключ в виде строки для логов.
func (k Key) String() string {
	if k.FilterID == "" {
		return k.Item
	}
	return k.Item + "/" + k.FilterID
}

// Message — одно сообщение потока консоли.
type Message struct {
	// Type — "stdin" (эхо команды), "stdout" или "stderr".
	Type string `json:"type"`

	// Data — текст сообщения.
	Data string `json:"data"`
}

// Spec — описание интерпретатора для запуска консоли.
type Spec struct {
	// Command — исполняемый файл интерпретатора.
	Command string

	// Args — аргументы запуска.
	Args []string

	// SentinelFormat — формат команды, печатающей маркер конца вывода,
	// например "print(%q)" для Python или "echo %s" для оболочки.
	SentinelFormat string
}

// process — один живой процесс интерпретатора.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	stderr chan string
	busy   bool
}

// Registry — реестр постоянных консолей по ключам.
//
// История команд и состояние дополнения хранятся в реестре, отдельно
// от процесса: перезапуск консоли их не сбрасывает.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	specs   map[Key]Spec
	procs   map[Key]*process
	history map[Key][]string
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		specs:   make(map[Key]Spec),
		procs:   make(map[Key]*process),
		history: make(map[Key][]string),
	}
}

// Open регистрирует консоль и запускает процесс интерпретатора,
// если он ещё не запущен.
func (r *Registry) Open(key Key, spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[key] = spec
	if _, ok := r.procs[key]; ok {
		return nil
	}
	return r.startLocked(key)
}

// startLocked запускает процесс. Вызывается под мьютексом.
func (r *Registry) startLocked(key Key) error {
	spec, ok := r.specs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConsoleNotFound, key)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe for %s: %w", key, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", key, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe for %s: %w", key, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start interpreter for %s: %w", key, err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewScanner(stdout),
		stderr: make(chan string, 64),
	}

	// stderr читается независимо, чтобы интерпретатор не блокировался.
	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			select {
			case p.stderr <- sc.Text():
			default:
			}
		}
		close(p.stderr)
	}()

	r.procs[key] = p
	r.logger.Info("persistent console started",
		"console", key.String(),
		"command", spec.Command,
	)
	return nil
}

// IsComplete проверяет, является ли текст законченной командой.
// Незаконченной команде вызывающая сторона добавляет перевод строки
// и ждёт продолжения ввода вместо отправки.
func (r *Registry) IsComplete(key Key, text string) (bool, error) {
	r.mu.Lock()
	_, ok := r.procs[key]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrConsoleNotFound, key)
	}
	return isCompleteText(text), nil
}

// IssueCommand отправляет законченную команду интерпретатору и
// возвращает ленивый поток сообщений. Поток закрывается, когда
// интерпретатор напечатал маркер конца вывода.
func (r *Registry) IssueCommand(key Key, text string) (<-chan Message, error) {
	r.mu.Lock()
	p, ok := r.procs[key]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConsoleNotFound, key)
	}
	if p.busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConsoleBusy, key)
	}
	p.busy = true
	spec := r.specs[key]
	r.history[key] = append(r.history[key], text)
	r.mu.Unlock()

	sentinel := uuid.NewString()
	out := make(chan Message, 64)

	go func() {
		defer close(out)
		defer func() {
			r.mu.Lock()
			p.busy = false
			r.mu.Unlock()
		}()

		out <- Message{Type: "stdin", Data: text}

		if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
			out <- Message{Type: "stderr", Data: err.Error()}
			return
		}
		marker := fmt.Sprintf(spec.SentinelFormat, sentinel)
		if _, err := io.WriteString(p.stdin, marker+"\n"); err != nil {
			out <- Message{Type: "stderr", Data: err.Error()}
			return
		}

		for p.stdout.Scan() {
			line := p.stdout.Text()
			if line == sentinel {
				break
			}
			// Эхо самой маркерной команды тоже скрываем.
			if line == marker {
				continue
			}
			out <- Message{Type: "stdout", Data: line}
		}
		for {
			select {
			case line, ok := <-p.stderr:
				if !ok {
					return
				}
				out <- Message{Type: "stderr", Data: line}
			default:
				return
			}
		}
	}()

	return out, nil
}

// History возвращает историю команд консоли.
func (r *Registry) History(key Key) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.history[key]))
	copy(out, r.history[key])
	return out
}

// Restart перезапускает консоль: процесс завершается и стартует заново.
// История команд сохраняется.
func (r *Registry) Restart(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConsoleNotFound, key)
	}
	killProcess(p)
	delete(r.procs, key)
	return r.startLocked(key)
}

// Interrupt посылает консоли сигнал прерывания текущего вычисления.
func (r *Registry) Interrupt(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConsoleNotFound, key)
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

// Kill завершает консоль и удаляет её из реестра.
func (r *Registry) Kill(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConsoleNotFound, key)
	}
	killProcess(p)
	delete(r.procs, key)
	r.logger.Info("persistent console killed", "console", key.String())
	return nil
}

// KillAll завершает все консоли. Вызывается при закрытии проекта.
func (r *Registry) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, p := range r.procs {
		killProcess(p)
		delete(r.procs, key)
	}
}

// killProcess завершает процесс и дожидается его.
func killProcess(p *process) {
	p.stdin.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.cmd.Wait()
}
