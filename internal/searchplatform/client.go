// client.go — HTTP-клиент к API внешней поисковой платформы.
// Реализует автоматическое получение service account token через Client
// Credentials flow, кэширование токена (обновление за 30s до expiration).
// Операции: подключение, схема, группы, членство групп, элементы.
// Статусы 404 и 409 отображаются в ErrNotFound и ErrConflict — ядро
// синхронизации ветвится на этих ошибках.
package searchplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Ошибки платформы, на которых ветвится ядро.
var (
	// ErrNotFound — ресурс отсутствует на платформе (HTTP 404).
	ErrNotFound = errors.New("ресурс не найден на платформе")
	// ErrConflict — ресурс уже существует на платформе (HTTP 409).
	ErrConflict = errors.New("ресурс уже существует на платформе")
)

// Client — HTTP-клиент к API поисковой платформы.
// Все операции выполняются в рамках одного подключения (connectionID).
type Client struct {
	baseURL      string // Базовый URL API платформы (без trailing slash)
	tokenURL     string // URL endpoint'а получения токена
	clientID     string // Client ID для Client Credentials flow
	clientSecret string // Client Secret
	connectionID string // Идентификатор подключения

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к API поисковой платформы.
// baseURL — базовый URL API, tokenURL — endpoint получения токена,
// clientID/clientSecret — credentials для Client Credentials flow,
// connectionID — идентификатор подключения из конфигурации.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, tokenURL, clientID, clientSecret, connectionID string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		connectionID: connectionID,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "platform_client")),
	}
}

// --- Аутентификация ---

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд — используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Токен платформы обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена платформы: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("платформа вернула статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена платформы: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// connectionBaseURL возвращает базовый URL операций текущего подключения.
func (c *Client) connectionBaseURL() string {
	return fmt.Sprintf("%s/v1/connections/%s", c.baseURL, c.connectionID)
}

// doAuthorized выполняет HTTP-запрос к API платформы с авторизацией.
// reqURL — полный URL запроса.
func (c *Client) doAuthorized(ctx context.Context, method, reqURL string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// apiError преобразует неуспешный ответ платформы в ошибку.
// 404 → ErrNotFound, 409 → ErrConflict, остальное — ошибка со статусом.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w (статус 404): %s", ErrNotFound, string(body))
	case http.StatusConflict:
		return fmt.Errorf("%w (статус 409): %s", ErrConflict, string(body))
	default:
		return fmt.Errorf("платформа вернула статус %d: %s", resp.StatusCode, string(body))
	}
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа платформы: %w", err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	return nil
}

// --- Connection API ---

// GetConnection возвращает подключение по настроенному connectionID.
func (c *Client) GetConnection(ctx context.Context) (*Connection, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, c.connectionBaseURL(), nil)
	if err != nil {
		return nil, err
	}

	var conn Connection
	if err := decodeResponse(resp, &conn); err != nil {
		return nil, fmt.Errorf("GetConnection: %w", err)
	}

	return &conn, nil
}

// CreateConnection создаёт подключение с настроенным connectionID.
func (c *Client) CreateConnection(ctx context.Context, name, description string) error {
	conn := Connection{
		ID:          c.connectionID,
		Name:        name,
		Description: description,
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, c.baseURL+"/v1/connections", conn)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("CreateConnection: %w", err)
	}

	return nil
}

// --- Schema API ---

// GetSchema возвращает текущую схему подключения.
func (c *Client) GetSchema(ctx context.Context) (*Schema, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, c.connectionBaseURL()+"/schema", nil)
	if err != nil {
		return nil, err
	}

	var schema Schema
	if err := decodeResponse(resp, &schema); err != nil {
		return nil, fmt.Errorf("GetSchema: %w", err)
	}

	return &schema, nil
}

// UpdateSchema создаёт или полностью заменяет схему подключения.
func (c *Client) UpdateSchema(ctx context.Context, schema *Schema) error {
	resp, err := c.doAuthorized(ctx, http.MethodPatch, c.connectionBaseURL()+"/schema", schema)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("UpdateSchema: %w", err)
	}

	return nil
}

// --- Groups API ---

// GetGroup возвращает внешнюю группу по идентификатору.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*ExternalGroup, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, c.connectionBaseURL()+"/groups/"+url.PathEscape(groupID), nil)
	if err != nil {
		return nil, err
	}

	var group ExternalGroup
	if err := decodeResponse(resp, &group); err != nil {
		return nil, fmt.Errorf("GetGroup: %w", err)
	}

	return &group, nil
}

// CreateGroup создаёт внешнюю группу.
// Если группа уже существует — возвращает ErrConflict (обёрнутый).
func (c *Client) CreateGroup(ctx context.Context, group ExternalGroup) error {
	resp, err := c.doAuthorized(ctx, http.MethodPost, c.connectionBaseURL()+"/groups", group)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("CreateGroup: %w", err)
	}

	return nil
}

// DeleteGroup удаляет внешнюю группу.
// Если группа не найдена — возвращает ErrNotFound (обёрнутый).
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, c.connectionBaseURL()+"/groups/"+url.PathEscape(groupID), nil)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("DeleteGroup: %w", err)
	}

	return nil
}

// AddGroupMember добавляет identity каталога в члены внешней группы.
func (c *Client) AddGroupMember(ctx context.Context, groupID string, member GroupMember) error {
	path := c.connectionBaseURL() + "/groups/" + url.PathEscape(groupID) + "/members"
	resp, err := c.doAuthorized(ctx, http.MethodPost, path, member)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("AddGroupMember: %w", err)
	}

	return nil
}

// RemoveGroupMember удаляет identity каталога из членов внешней группы.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, memberID string) error {
	path := c.connectionBaseURL() + "/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(memberID)
	resp, err := c.doAuthorized(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("RemoveGroupMember: %w", err)
	}

	return nil
}

// --- Items API ---

// GetItem возвращает внешний элемент по идентификатору.
// Отсутствующий элемент — ErrNotFound; вызывающий трактует это как
// "элемент отсутствует", а не как сбой.
func (c *Client) GetItem(ctx context.Context, itemID string) (*ExternalItem, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, c.connectionBaseURL()+"/items/"+url.PathEscape(itemID), nil)
	if err != nil {
		return nil, err
	}

	var w itemWire
	if err := decodeResponse(resp, &w); err != nil {
		return nil, fmt.Errorf("GetItem: %w", err)
	}

	return fromWire(w), nil
}

// UpsertItem создаёт или обновляет внешний элемент с явным id.
// Сериализуются только заполненные части элемента, поэтому один и тот же
// вызов работает и для полной записи, и для частичного обновления
// (например, только ACL + одно свойство).
func (c *Client) UpsertItem(ctx context.Context, item *ExternalItem) error {
	if item.ID == "" {
		return fmt.Errorf("UpsertItem: пустой id элемента")
	}

	w := item.toWire()
	w.ID = "" // id передаётся в пути, не в теле

	resp, err := c.doAuthorized(ctx, http.MethodPut, c.connectionBaseURL()+"/items/"+url.PathEscape(item.ID), w)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("UpsertItem: %w", err)
	}

	return nil
}

// DeleteItem удаляет внешний элемент.
// Если элемент не найден — возвращает ErrNotFound (обёрнутый).
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, c.connectionBaseURL()+"/items/"+url.PathEscape(itemID), nil)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("DeleteItem: %w", err)
	}

	return nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность платформы через запрос подключения.
// Реализует handlers.ReadinessChecker. Отсутствие подключения — не сбой:
// оно будет создано при первой синхронизации.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := c.GetConnection(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "degraded", fmt.Sprintf("подключение %s ещё не создано", c.connectionID)
		}
		return "fail", fmt.Sprintf("платформа недоступна: %v", err)
	}

	return "ok", fmt.Sprintf("подключение %s доступно (state=%s)", conn.ID, conn.State)
}
