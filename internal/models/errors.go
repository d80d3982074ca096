package models

import (
	"errors"
	"fmt"
)

// ErrorKind - класс ошибки рабочего процесса.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
	KindContract    ErrorKind = "contract"
	KindTimeout     ErrorKind = "timeout"
	KindStorage     ErrorKind = "storage"
	KindConsistency ErrorKind = "consistency"
)

// Сравнивать ошибки с этими значениями через errors.Is.
var (
	ErrValidation  = &WorkflowError{Kind: KindValidation}
	ErrNotFound    = &WorkflowError{Kind: KindNotFound}
	ErrConflict    = &WorkflowError{Kind: KindConflict}
	ErrContract    = &WorkflowError{Kind: KindContract}
	ErrTimeout     = &WorkflowError{Kind: KindTimeout}
	ErrStorage     = &WorkflowError{Kind: KindStorage}
	ErrConsistency = &WorkflowError{Kind: KindConsistency}
)

// WorkflowError описывает ошибку шага рабочего процесса.
// TxHash заполняется, если шаг уже подтвержден в сети.
type WorkflowError struct {
	Kind    ErrorKind
	Op      string
	Message string
	TxHash  string
	Err     error
}

func (e *WorkflowError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с сигнальными значениями по Kind.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// NewValidationError создает ошибку валидации.
func NewValidationError(op, message string) error {
	return &WorkflowError{Kind: KindValidation, Op: op, Message: message}
}

// NewNotFoundError создает ошибку отсутствующей записи.
func NewNotFoundError(op, message string) error {
	return &WorkflowError{Kind: KindNotFound, Op: op, Message: message}
}

// NewConflictError создает ошибку конфликта состояний.
func NewConflictError(op, message string) error {
	return &WorkflowError{Kind: KindConflict, Op: op, Message: message}
}

// NewStorageError оборачивает ошибку хранилища.
func NewStorageError(op string, err error) error {
	return &WorkflowError{Kind: KindStorage, Op: op, Err: err}
}

// NewConsistencyError сообщает, что транзакция подтверждена, а запись в хранилище не сохранилась.
func NewConsistencyError(op, txHash string, err error) error {
	return &WorkflowError{
		Kind:    KindConsistency,
		Op:      op,
		Message: "paid, but record not saved - retry saving",
		TxHash:  txHash,
		Err:     err,
	}
}

// KindOf возвращает класс ошибки; неизвестные ошибки считаются ошибками хранилища.
func KindOf(err error) ErrorKind {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindStorage
}

// TxHashOf возвращает хэш подтвержденной транзакции из ошибки, если он есть.
func TxHashOf(err error) string {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.TxHash
	}
	return ""
}
