// Package apierr классифицирует ошибки обращения к API PalmAstro.
//
// Живой клиент никогда не подменяет ответ заглушкой сам. Вместо этого он
// возвращает *Error с категорией, по которой вызывающий код решает, можно ли
// откатиться на симулированный ответ.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated означает, что операция требует входа в систему.
var ErrNotAuthenticated = errors.New("not authenticated")

// Kind определяет категорию ошибки.
type Kind int

const (
	// KindNetwork означает сбой соединения или таймаут.
	KindNetwork Kind = iota
	// KindStatus означает, что сервер ответил кодом вне диапазона 2xx.
	KindStatus
	// KindDecode означает, что ответ не удалось разобрать.
	KindDecode
	// KindNotAuthenticated означает, что нет токена или сервер отверг его после обновления.
	KindNotAuthenticated
	// KindInvalidInput означает, что запрос не удалось сформировать из входных данных.
	KindInvalidInput
)

// String возвращает название категории.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error описывает ошибку операции API.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Body       string
	Err        error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("%s: [%s] HTTP %d: %v", e.Op, e.Kind, e.StatusCode, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: [%s] HTTP %d", e.Op, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: [%s] %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: [%s]", e.Op, e.Kind)
}

// Unwrap возвращает исходную ошибку.
func (e *Error) Unwrap() error { return e.Err }

// Is позволяет сравнивать ошибку с ErrNotAuthenticated через errors.Is.
func (e *Error) Is(target error) bool {
	return target == ErrNotAuthenticated && e.Kind == KindNotAuthenticated
}

// NotAuthenticated создаёт ошибку отсутствия аутентификации для операции.
func NotAuthenticated(op string) *Error {
	return &Error{Op: op, Kind: KindNotAuthenticated, StatusCode: http.StatusUnauthorized}
}

// Network создаёт ошибку сетевого уровня.
func Network(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

// Decode создаёт ошибку разбора ответа.
func Decode(op string, err error) *Error {
	return &Error{Op: op, Kind: KindDecode, Err: err}
}

// InvalidInput создаёт ошибку формирования запроса.
func InvalidInput(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInvalidInput, Err: err}
}

// FromStatus создаёт ошибку для ответа с кодом вне диапазона 2xx.
func FromStatus(op string, statusCode int, body string) *Error {
	return &Error{Op: op, Kind: KindStatus, StatusCode: statusCode, Body: body}
}

// KindOf возвращает категорию ошибки, если она классифицирована.
func KindOf(err error) (Kind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

// Recoverable сообщает, стоит ли повторять запрос.
// Повторяются сетевые ошибки, 5xx, 408 и 429; остальные 4xx считаются окончательными.
func Recoverable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindNetwork:
		return true
	case KindStatus:
		code := apiErr.StatusCode
		return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
	}
	return false
}

// Fallbackable сообщает, можно ли заменить результат операции симулированным.
// Отсутствие аутентификации, некорректный ввод и отмена контекста всегда возвращаются вызывающему.
func Fallbackable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindNetwork, KindStatus, KindDecode:
		return true
	}
	return false
}
