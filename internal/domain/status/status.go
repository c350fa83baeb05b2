// Пакет status — конечный автомат жизненного цикла отправки.
//
// Жизненный цикл:
//   - submitted → forwarded → completed — штатный путь доставки
//   - forwarded → failed, submitted → failed — отказ downstream
//   - failed → submitted — административный retry (повторное уведомление)
//
// completed — терминальный статус. failed — терминальный, но переоткрываемый
// только через retry. Любой переход вне матрицы недопустим и для вызывающего
// кода неотличим от «запись не найдена».
package status

import "fmt"

// Status — статус отправки.
type Status string

const (
	// StatusSubmitted — запись создана, конверт архивирован, SDES уведомлён (или ждёт повторного уведомления)
	StatusSubmitted Status = "submitted"
	// StatusForwarded — SDES принял файл и передал его дальше
	StatusForwarded Status = "forwarded"
	// StatusCompleted — доставка подтверждена (терминальный)
	StatusCompleted Status = "completed"
	// StatusFailed — доставка не удалась, возможен retry
	StatusFailed Status = "failed"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[Status]map[Status]bool{
	StatusSubmitted: {StatusForwarded: true, StatusFailed: true},
	StatusForwarded: {StatusCompleted: true, StatusFailed: true},
	StatusCompleted: {}, // Терминальный статус — переходы запрещены
	StatusFailed:    {StatusSubmitted: true},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to Status) bool {
	transitions, ok := validTransitions[from]
	if !ok {
		return false
	}
	return transitions[to]
}

// SourcesFor возвращает статусы, из которых допустим переход в target.
// Репозиторий встраивает этот набор в условие атомарного UPDATE —
// легальность перехода проверяется той же операцией, что и сама запись.
func SourcesFor(target Status) []Status {
	// Фиксированный порядок обхода — детерминированные SQL-аргументы
	var sources []Status
	for _, from := range []Status{StatusSubmitted, StatusForwarded, StatusCompleted, StatusFailed} {
		if validTransitions[from][target] {
			sources = append(sources, from)
		}
	}
	return sources
}

// IsTerminal проверяет, является ли статус терминальным для штатного потока.
// failed формально терминальный, но переоткрывается через retry.
func IsTerminal(s Status) bool {
	return len(validTransitions[s]) == 0
}

// isValid проверяет, является ли строка допустимым статусом.
func isValid(s Status) bool {
	switch s {
	case StatusSubmitted, StatusForwarded, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Parse преобразует строку в Status.
// Возвращает ошибку для недопустимых значений.
func Parse(s string) (Status, error) {
	st := Status(s)
	if !isValid(st) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: submitted, forwarded, completed, failed", s)
	}
	return st, nil
}
