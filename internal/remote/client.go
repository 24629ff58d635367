package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/conveyorhq/conveyor/internal/console"
	"github.com/conveyorhq/conveyor/internal/engine"
)

// Ошибки клиента.
var (
	// ErrRemoteEngineInit — сервер недостижим или не ответил на ping.
	// Фатальна для конструирования клиента.
	ErrRemoteEngineInit = errors.New("remote engine initialization failed")

	// ErrNoPullSocket — поток событий запрошен до start_execution.
	ErrNoPullSocket = errors.New("pull socket is not open")
)

// defaultPingTimeout — таймаут проверки достижимости по умолчанию.
const defaultPingTimeout = 5 * time.Second

// Client — клиент проводного протокола сервера выполнения.
//
// REQ-сокет используется строго последовательно: один запрос в полёте,
// ответ читается блокирующе сразу после отправки. PULL-сокет открывается
// после start_execution на порту из ответа.
type Client struct {
	host   string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	reqMu sync.Mutex
	req   zmq4.Socket

	pullMu sync.Mutex
	pull   zmq4.Socket
}

// NewClient подключается к серверу и жадно проверяет достижимость:
// ping со случайным корреляционным id должен вернуться в точности
// эхом под таймаутом. Несовпадение или таймаут — ErrRemoteEngineInit.
func NewClient(host string, port int, pingTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := zmq4.NewReq(ctx, zmq4.WithDialerMaxRetries(0))

	endpoint := fmt.Sprintf("tcp://%s:%d", host, port)
	if err := req.Dial(endpoint); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: dial %s: %v", ErrRemoteEngineInit, endpoint, err)
	}

	c := &Client{
		host:   host,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		req:    req,
	}
	if err := c.checkConnectivity(pingTimeout); err != nil {
		c.Close()
		return nil, err
	}
	logger.Info("connected to execution server", "endpoint", endpoint)
	return c, nil
}

// checkConnectivity посылает ping и ждёт точное эхо корреляционного id.
func (c *Client) checkConnectivity(timeout time.Duration) error {
	correlationID := uuid.NewString()

	type result struct {
		reply *ServerMessage
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		reply, err := c.request(NewServerMessage(CommandPing, correlationID, ""), nil)
		ch <- result{reply, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("%w: ping: %v", ErrRemoteEngineInit, res.err)
		}
		if res.reply.ID != correlationID {
			return fmt.Errorf("%w: ping correlation id mismatch (sent %s, got %s)",
				ErrRemoteEngineInit, correlationID, res.reply.ID)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: ping timed out after %s", ErrRemoteEngineInit, timeout)
	}
}

// request отправляет сообщение и блокирующе читает ответ.
func (c *Client) request(msg *ServerMessage, attachments []Attachment) (*ServerMessage, error) {
	frames, err := msg.ToFrames(attachments)
	if err != nil {
		return nil, err
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.req.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return nil, fmt.Errorf("send %s: %w", msg.Command, err)
	}
	raw, err := c.req.Recv()
	if err != nil {
		return nil, fmt.Errorf("receive reply to %s: %w", msg.Command, err)
	}
	reply, _, err := ParseServerMessage(raw.Frames)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// requestWithAttachments — как request, но возвращает и приложения ответа.
func (c *Client) requestWithAttachments(msg *ServerMessage) (*ServerMessage, []Attachment, error) {
	frames, err := msg.ToFrames(nil)
	if err != nil {
		return nil, nil, err
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.req.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return nil, nil, fmt.Errorf("send %s: %w", msg.Command, err)
	}
	raw, err := c.req.Recv()
	if err != nil {
		return nil, nil, fmt.Errorf("receive reply to %s: %w", msg.Command, err)
	}
	return ParseServerMessage(raw.Frames)
}

// PrepareExecution упаковывает каталог проекта в zip и загружает его
// на сервер. Возвращает id задания, назначенный сервером.
func (c *Client) PrepareExecution(projectDir string) (string, error) {
	zipped, err := zipDirectory(projectDir)
	if err != nil {
		return "", fmt.Errorf("zip project: %w", err)
	}
	data, err := marshalData(map[string]any{
		"project_dir_name": filepath.Base(projectDir),
	})
	if err != nil {
		return "", err
	}
	msg := NewServerMessage(CommandPrepareExecution, "", data)
	reply, err := c.request(msg, []Attachment{{Name: "project.zip", Data: zipped}})
	if err != nil {
		return "", err
	}
	var jobID string
	if err := json.Unmarshal([]byte(reply.Data), &jobID); err != nil {
		return "", fmt.Errorf("unmarshal job id: %w", err)
	}
	if jobID == "" {
		return "", fmt.Errorf("server returned empty job id")
	}
	return jobID, nil
}

// StartExecution запускает выполнение задания и открывает PULL-сокет
// на порту из ответа сервера.
func (c *Client) StartExecution(jobID, engineInputJSON string) error {
	msg := NewServerMessage(CommandStartExecution, jobID, engineInputJSON)
	reply, err := c.request(msg, nil)
	if err != nil {
		return err
	}
	d, err := reply.DataDict()
	if err != nil {
		return err
	}
	port, ok := d["port"].(float64)
	if !ok {
		return fmt.Errorf("start_execution reply has no pull port")
	}
	return c.openPull(int(port))
}

// openPull открывает PULL-сокет потока событий.
func (c *Client) openPull(port int) error {
	c.pullMu.Lock()
	defer c.pullMu.Unlock()

	pull := zmq4.NewPull(c.ctx)
	endpoint := fmt.Sprintf("tcp://%s:%d", c.host, port)
	if err := pull.Dial(endpoint); err != nil {
		return fmt.Errorf("dial pull socket %s: %w", endpoint, err)
	}
	c.pull = pull
	c.logger.Debug("pull socket open", "endpoint", endpoint)
	return nil
}

// PullEvent блокирующе принимает и декодирует одно событие с провода.
// Формат: фрейм 0 — тег события, фрейм 1 — JSON полезной нагрузки.
// Неизвестные теги отображаются в EventUnknown с исходным тегом
// в поле "event_type".
func (c *Client) PullEvent() (engine.Event, error) {
	c.pullMu.Lock()
	pull := c.pull
	c.pullMu.Unlock()
	if pull == nil {
		return engine.Event{}, ErrNoPullSocket
	}

	raw, err := pull.Recv()
	if err != nil {
		return engine.Event{}, fmt.Errorf("receive event: %w", err)
	}
	if len(raw.Frames) < 2 {
		return engine.Event{}, fmt.Errorf("malformed event with %d frames", len(raw.Frames))
	}

	tag := string(raw.Frames[0])
	data := make(map[string]any)
	if len(raw.Frames[1]) > 0 {
		if err := json.Unmarshal(raw.Frames[1], &data); err != nil {
			return engine.Event{}, fmt.Errorf("unmarshal event %s: %w", tag, err)
		}
	}
	data["event_type"] = tag
	return engine.Event{Type: engine.ParseEventType(tag), Data: data}, nil
}

// RetrieveFiles принимает с PULL-сокета выходные файлы выполнения,
// файл за файлом, до сентинела END, и раскладывает их в каталог
// проекта. Вызывается до того, как терминальное событие отдано
// потребителю: файлы гарантированно на месте к моменту завершения.
func (c *Client) RetrieveFiles(projectDir string) error {
	c.pullMu.Lock()
	pull := c.pull
	c.pullMu.Unlock()
	if pull == nil {
		return ErrNoPullSocket
	}

	for {
		raw, err := pull.Recv()
		if err != nil {
			return fmt.Errorf("receive file: %w", err)
		}
		if len(raw.Frames) == 0 {
			return fmt.Errorf("malformed file frame")
		}
		name := string(raw.Frames[0])
		if name == EndOfFiles {
			return nil
		}
		if len(raw.Frames) < 2 {
			return fmt.Errorf("file %s without contents", name)
		}
		path := filepath.Join(projectDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, raw.Frames[1], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		c.logger.Debug("retrieved output file", "file", name)
	}
}

// StopExecution посылает серверу запрос на остановку задания.
// Остановка лучшая из возможных: подтверждение придёт терминальным
// событием через поток.
func (c *Client) StopExecution(jobID string) error {
	_, err := c.request(NewServerMessage(CommandStopExecution, jobID, ""), nil)
	return err
}

// AnswerPrompt передаёт ответ пользователя на запрос prompt.
func (c *Client) AnswerPrompt(jobID, itemName string, accepted bool) error {
	data, err := marshalData(map[string]any{
		"item_name": itemName,
		"accepted":  accepted,
	})
	if err != nil {
		return err
	}
	_, err = c.request(NewServerMessage(CommandAnswerPrompt, jobID, data), nil)
	return err
}

// IsPersistentCommandComplete спрашивает у сервера, закончена ли команда.
func (c *Client) IsPersistentCommandComplete(jobID string, key console.Key, cmd string) (bool, error) {
	reply, err := c.persistentRequest(jobID, "is_complete", key, cmd)
	if err != nil {
		return false, err
	}
	var complete bool
	if err := json.Unmarshal([]byte(reply.Data), &complete); err != nil {
		return false, fmt.Errorf("unmarshal is_complete reply: %w", err)
	}
	return complete, nil
}

// IssuePersistentCommand выполняет команду в постоянной консоли сервера.
// Сообщения отдаются ленивым потоком с точки зрения потребителя.
func (c *Client) IssuePersistentCommand(jobID string, key console.Key, cmd string) (<-chan console.Message, error) {
	reply, err := c.persistentRequest(jobID, "issue_command", key, cmd)
	if err != nil {
		return nil, err
	}
	var messages []console.Message
	if err := json.Unmarshal([]byte(reply.Data), &messages); err != nil {
		return nil, fmt.Errorf("unmarshal console messages: %w", err)
	}
	out := make(chan console.Message, len(messages))
	go func() {
		defer close(out)
		for _, m := range messages {
			out <- m
		}
	}()
	return out, nil
}

// RestartPersistent перезапускает постоянную консоль на сервере.
func (c *Client) RestartPersistent(jobID string, key console.Key) error {
	_, err := c.persistentRequest(jobID, "restart", key, "")
	return err
}

// InterruptPersistent прерывает вычисление в постоянной консоли.
func (c *Client) InterruptPersistent(jobID string, key console.Key) error {
	_, err := c.persistentRequest(jobID, "interrupt", key, "")
	return err
}

// KillPersistent завершает постоянную консоль на сервере.
func (c *Client) KillPersistent(jobID string, key console.Key) error {
	_, err := c.persistentRequest(jobID, "kill", key, "")
	return err
}

// persistentRequest — общий запрос протокола постоянной консоли.
func (c *Client) persistentRequest(jobID, subcommand string, key console.Key, cmd string) (*ServerMessage, error) {
	data, err := marshalData(map[string]any{
		"type":      subcommand,
		"item":      key.Item,
		"filter_id": key.FilterID,
		"cmd":       cmd,
	})
	if err != nil {
		return nil, err
	}
	return c.request(NewServerMessage(CommandExecuteInPersistent, jobID, data), nil)
}

// RetrieveProject скачивает проект с сервера и распаковывает его
// в локальный каталог.
func (c *Client) RetrieveProject(jobID, targetDir string) error {
	reply, attachments, err := c.requestWithAttachments(
		NewServerMessage(CommandRetrieveProject, jobID, ""))
	if err != nil {
		return err
	}
	if len(attachments) == 0 {
		return fmt.Errorf("retrieve_project reply %q has no attachment", reply.Data)
	}
	return unzipInto(targetDir, attachments[0].Data)
}

// RemoveProject удаляет проект задания с сервера.
func (c *Client) RemoveProject(jobID string) error {
	_, err := c.request(NewServerMessage(CommandRemoveProject, jobID, ""), nil)
	return err
}

// Close закрывает сокеты клиента.
//
// REQ-сокет закрывается без reqMu: запрос в полёте держит мьютекс,
// блокируясь в Recv, и именно закрытие сокета снимает эту блокировку.
// Взятие reqMu здесь означало бы взаимную блокировку с зависшим
// запросом (например, с ping к молчащему серверу).
func (c *Client) Close() {
	c.cancel()
	c.req.Close()

	c.pullMu.Lock()
	if c.pull != nil {
		c.pull.Close()
		c.pull = nil
	}
	c.pullMu.Unlock()
}
