// Пакет rbac — проверка прав доступа к ресурсу dms-submission.
// Два вида субъектов: административные пользователи (роль из групп IdP)
// и сервисные аккаунты (scopes + привязка к owner).
// Проверка выполняется адаптером запросов до вызова бизнес-логики —
// ядро ничего не знает про HTTP и токены.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleReadonly = "readonly"
	RoleAdmin    = "admin"
)

// Action — действие над ресурсом dms-submission.
type Action string

const (
	// ActionRead — чтение списка отправок владельца
	ActionRead Action = "READ"
	// ActionWrite — изменение отправок владельца (retry)
	ActionWrite Action = "WRITE"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleReadonly: 1,
	RoleAdmin:    2,
}

// AllowedForRole проверяет, допускает ли роль действие над dms-submission.
// admin — READ и WRITE для любого owner, readonly — только READ.
func AllowedForRole(role string, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReadonly:
		return action == ActionRead
	default:
		return false
	}
}

// AllowedForOwner проверяет доступ сервисного аккаунта:
// SA имеет доступ только к отправкам своего owner.
func AllowedForOwner(subjectOwner, owner string) bool {
	return subjectOwner != "" && subjectOwner == owner
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	wa := roleWeight[a]
	wb := roleWeight[b]
	if wa >= wb {
		return a
	}
	return b
}

// MapGroupsToRole определяет роль пользователя на основе его групп IdP.
// Проверяет принадлежность к adminGroups и readonlyGroups.
// Возвращает максимальную роль из всех совпадений.
// Если ни одна группа не совпала — возвращает пустую строку.
func MapGroupsToRole(groups []string, adminGroups, readonlyGroups []string) string {
	adminSet := toSet(adminGroups)
	readonlySet := toSet(readonlyGroups)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
		if readonlySet[g] {
			roles = append(roles, RoleReadonly)
		}
	}

	return HighestRole(roles)
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
