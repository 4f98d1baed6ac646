// Пакет ids — детерминированное выведение идентификаторов внешней платформы
// из внутренних идентификаторов системы Rox.
// Чистые функции без побочных эффектов: один и тот же вход всегда даёт
// один и тот же внешний идентификатор, повторный вызов не требует БД.
package ids

import "strings"

// idPrefix — общий префикс всех идентификаторов, создаваемых мостом
// во внешней поисковой платформе. Позволяет отличить наши сущности
// от созданных вручную.
const idPrefix = "rox"

// GroupIDFor возвращает стабильный идентификатор внешней группы для пула знаний.
// Идентификатор пула нормализуется: дефисы убираются, буквы приводятся
// к нижнему регистру (платформа допускает только [0-9a-z] в id групп).
func GroupIDFor(poolID string) string {
	normalized := strings.ToLower(strings.ReplaceAll(poolID, "-", ""))
	return idPrefix + "kp" + normalized
}

// ItemIDFor возвращает стабильный идентификатор внешнего элемента для файла.
// Идентификаторы файлов Rox уже соответствуют ограничениям платформы,
// нормализация не нужна.
func ItemIDFor(fileID string) string {
	return idPrefix + "file" + fileID
}
