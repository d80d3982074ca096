package models

// ErrorResponse описывает ошибку с кодом и сообщением.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"reason"`
	Kind       string `json:"kind,omitempty"`
	TxHash     string `json:"txHash,omitempty"`
}

// NewErrorResponse создает новую ошибку с кодом и сообщением.
func NewErrorResponse(statusCode int, message string) *ErrorResponse {
	return &ErrorResponse{
		StatusCode: statusCode,
		Message:    message}
}

// Реализация метода Error() для удовлетворения интерфейса error.
func (e *ErrorResponse) Error() string {
	return e.Message
}

// WarningResponse - ответ для операций, подтвержденных в сети, но не сохраненных в хранилище.
type WarningResponse struct {
	Warning string `json:"warning"`
	TxHash  string `json:"txHash"`
}
