// Пакет sdes — HTTP-клиент системы доставки SDES.
// Поддерживает TLS с кастомным CA (SM_SDES_CA_CERT_PATH).
// Операции: Notify (POST /notification/fileready) — уведомление о готовности конверта.
package sdes

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// FileReady — уведомление SDES о готовности конверта к забору.
type FileReady struct {
	InformationType   string `json:"informationType"`
	Filename          string `json:"file"`
	ChecksumAlgorithm string `json:"checksumAlgorithm"`
	Checksum          string `json:"checksum"`
	FileSize          int64  `json:"fileSize"`
	Location          string `json:"fileLocation"`
	CorrelationID     string `json:"correlationId"`
}

// Client — HTTP-клиент SDES.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт SDES-клиент.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// clientID — идентификатор клиента, передаётся в заголовке X-Client-Id.
func New(baseURL, clientID, caCertPath string, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата SDES: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат SDES добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "sdes_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// Notify отправляет уведомление fileready в SDES.
// POST /notification/fileready — SDES отвечает 204 при успешном приёме.
func (c *Client) Notify(ctx context.Context, notification FileReady) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("сериализация уведомления SDES: %w", err)
	}

	reqURL := c.baseURL + "/notification/fileready"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса Notify: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос Notify к SDES: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SDES вернул статус %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("Уведомление fileready отправлено",
		slog.String("correlation_id", notification.CorrelationID),
		slog.String("file", notification.Filename),
	)

	return nil
}

// CheckReady проверяет доступность SDES для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return "fail", fmt.Sprintf("создание запроса: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("SDES недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "fail", fmt.Sprintf("SDES вернул статус %d", resp.StatusCode)
	}
	return "ok", "SDES доступен"
}
