package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/sirupsen/logrus"
)

// SendErrorResponse отправляет ошибку в формате JSON
func SendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, models.ErrorResponse{
		StatusCode: statusCode,
		Message:    message,
	})
}

// SendJSON отправляет ответ в формате JSON
func SendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	sendJSON(w, statusCode, body)
}

// SendWorkflowError переводит класс ошибки рабочего процесса в HTTP-ответ.
// ConsistencyError отдается как 202: транзакция прошла, но запись нужно повторить.
func SendWorkflowError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	var errorResponse *models.ErrorResponse
	if errors.As(err, &errorResponse) {
		sendJSON(w, errorResponse.StatusCode, errorResponse)
		return
	}

	kind := models.KindOf(err)
	entry := logger.WithField("kind", kind).WithError(err)
	if txHash := models.TxHashOf(err); txHash != "" {
		entry = entry.WithField("tx_hash", txHash)
	}

	if kind == models.KindConsistency {
		var we *models.WorkflowError
		message := err.Error()
		if errors.As(err, &we) {
			message = we.Message
		}
		sendJSON(w, http.StatusAccepted, models.WarningResponse{
			Warning: message,
			TxHash:  models.TxHashOf(err),
		})
		return
	}

	status := StatusForKind(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError && kind == models.KindStorage {
		entry.Error("request failed")
		message = "storage unavailable"
	} else {
		entry.Warn("request rejected")
	}
	sendJSON(w, status, models.ErrorResponse{
		StatusCode: status,
		Message:    message,
		Kind:       string(kind),
		TxHash:     models.TxHashOf(err),
	})
}

// StatusForKind возвращает HTTP-статус для класса ошибки.
func StatusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindContract:
		return http.StatusBadGateway
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	case models.KindConsistency:
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

// ParseLimitOffset обрабатывает limit и offset
func ParseLimitOffset(limitStr, offsetStr string) (int, int, error) {
	var limit, offset int
	var err error

	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > 50 {
			return 0, 0, fmt.Errorf("invalid limit parameter, must be a positive integer [0:50]")
		}
	} else {
		limit = 5
	}

	if offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter, must be a non-negative integer")
		}
	} else {
		offset = 0
	}

	return limit, offset, nil
}

// ParseStatuses собирает статусы из повторяющегося или разделенного запятыми параметра.
func ParseStatuses(values []string) []string {
	var statuses []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
	}
	return statuses
}

func sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}
